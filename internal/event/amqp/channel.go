package amqp

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/inbound"
)

// ErrDeliveriesClosed - брокер закрыл поток доставок (канал или соединение упали)
var ErrDeliveriesClosed = errors.New("amqp deliveries channel closed")

// consumerChannel - часть *amqp.Channel, нужная consumer-у (подменяется в тестах)
type consumerChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Ack(tag uint64, multiple bool) error
	Reject(tag uint64, requeue bool) error
	Close() error
}

// Channel реализует inbound.Channel поверх AMQP канала: manual ack, prefetch через Qos.
type Channel struct {
	logger     *zap.Logger
	ch         consumerChannel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewChannelFactory возвращает фабрику каналов: на каждый consumer slot свой AMQP канал с Qos(prefetch)
func NewChannelFactory(logger *zap.Logger, connector *Connector, queue string, prefetch int) inbound.ChannelFactory {
	return func(ctx context.Context) (inbound.Channel, error) {
		ch, err := connector.Channel()
		if err != nil {
			return nil, err
		}
		c, err := openChannel(logger, ch, queue, prefetch)
		if err != nil {
			_ = ch.Close()
			return nil, err
		}
		return c, nil
	}
}

func openChannel(logger *zap.Logger, ch consumerChannel, queue string, prefetch int) (*Channel, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	logger.Info("amqp channel opened", zap.String("queue", queue), zap.Int("prefetch", prefetch))
	return &Channel{logger: logger, ch: ch, queue: queue, deliveries: deliveries}, nil
}

// Receive ждёт следующую доставку или отмену ctx
func (c *Channel) Receive(ctx context.Context) (inbound.Delivery, error) {
	select {
	case <-ctx.Done():
		return inbound.Delivery{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return inbound.Delivery{}, ErrDeliveriesClosed
		}
		return inbound.Delivery{
			Body:        d.Body,
			Tag:         d.DeliveryTag,
			Source:      c.queue,
			Headers:     stringHeaders(d.Headers),
			Redelivered: d.Redelivered,
			Raw:         d,
		}, nil
	}
}

// Ack подтверждает одну доставку
func (c *Channel) Ack(ctx context.Context, d inbound.Delivery) error {
	return c.ch.Ack(d.Tag, false)
}

// Reject отклоняет доставку; без requeue брокер отправляет её в dead-letter exchange очереди
func (c *Channel) Reject(ctx context.Context, d inbound.Delivery, requeue bool) error {
	return c.ch.Reject(d.Tag, requeue)
}

// Close закрывает канал; неподтверждённые доставки брокер вернёт в очередь
func (c *Channel) Close() error {
	return c.ch.Close()
}

func stringHeaders(t amqp.Table) map[string]string {
	if len(t) == 0 {
		return nil
	}
	headers := make(map[string]string, len(t))
	for k, v := range t {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		}
	}
	return headers
}
