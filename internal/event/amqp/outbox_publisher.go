package amqp

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/repository"
	"github.com/shestoi/bookstore-orders/platform/observability"
)

// publishChannel - часть *amqp.Channel для публикации
type publishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// OutboxPublisher реализует outbox.Publisher: exchange = topic события (topic exchange), ключ - routing key
type OutboxPublisher struct {
	logger *zap.Logger
	open   func() (publishChannel, error)

	mu       sync.Mutex
	ch       publishChannel
	declared map[string]bool
}

// NewOutboxPublisher создаёт publisher поверх общего соединения
func NewOutboxPublisher(logger *zap.Logger, connector *Connector) *OutboxPublisher {
	return newOutboxPublisher(logger, func() (publishChannel, error) {
		ch, err := connector.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
}

func newOutboxPublisher(logger *zap.Logger, open func() (publishChannel, error)) *OutboxPublisher {
	return &OutboxPublisher{logger: logger, open: open, declared: make(map[string]bool)}
}

// Publish отправляет persistent сообщение в exchange event.Topic
func (p *OutboxPublisher) Publish(ctx context.Context, event repository.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.open()
		if err != nil {
			return err
		}
		p.ch = ch
		p.declared = make(map[string]bool)
	}

	if !p.declared[event.Topic] {
		if err := p.ch.ExchangeDeclare(event.Topic, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", event.Topic, err)
		}
		p.declared[event.Topic] = true
	}

	headers := amqp.Table{}
	for k, v := range observability.InjectHeaders(ctx) {
		headers[k] = v
	}

	err := p.ch.PublishWithContext(ctx, event.Topic, event.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         event.EventType,
		Headers:      headers,
		Body:         event.Payload,
	})
	if err != nil {
		p.logger.Error("failed to publish outbox event to amqp",
			zap.Error(err),
			zap.String("exchange", event.Topic),
			zap.String("routing_key", event.RoutingKey),
			zap.String("event_id", event.EventID),
		)
		return err
	}
	return nil
}

// Close закрывает publish канал
func (p *OutboxPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}
