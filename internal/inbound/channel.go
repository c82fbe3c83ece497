package inbound

import "context"

// Delivery - одна доставка сообщения брокером consumer-у
type Delivery struct {
	// Body - сырой payload
	Body []byte
	// Tag - выданный брокером handle доставки (amqp delivery tag / kafka offset)
	Tag uint64
	// Source - очередь или топик, откуда пришло сообщение
	Source string
	// Headers - заголовки сообщения (trace context и т.п.)
	Headers map[string]string
	// Redelivered - брокер доставляет сообщение повторно
	Redelivered bool
	// Raw - исходное сообщение адаптера (amqp091.Delivery / kafka.Message)
	Raw any
}

// Channel - внешний транспорт, поставляющий доставки и принимающий ack/reject.
// Один экземпляр принадлежит одному consumer slot-у и не используется конкурентно.
type Channel interface {
	// Receive блокируется до следующей доставки или отмены ctx (возвращает ctx.Err())
	Receive(ctx context.Context) (Delivery, error)
	// Ack подтверждает доставку
	Ack(ctx context.Context, d Delivery) error
	// Reject отклоняет доставку; requeue=false отдаёт её dead-letter маршрутизации брокера
	Reject(ctx context.Context, d Delivery, requeue bool) error
	// Close освобождает ресурсы канала
	Close() error
}

// ChannelFactory открывает новый канал для consumer slot-а
type ChannelFactory func(ctx context.Context) (Channel, error)
