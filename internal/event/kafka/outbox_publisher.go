package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/repository"
	"github.com/shestoi/bookstore-orders/platform/observability"
)

// OutboxPublisher реализует outbox.Publisher: topic берётся из события, ключ - aggregate_id
type OutboxPublisher struct {
	logger *zap.Logger
	writer messageWriter
}

// NewOutboxPublisher создаёт publisher без фиксированного топика
func NewOutboxPublisher(logger *zap.Logger, brokers []string) *OutboxPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPublisher{logger: logger, writer: writer}
}

// Publish отправляет событие в topic из outbox записи
func (p *OutboxPublisher) Publish(ctx context.Context, event repository.OutboxEvent) error {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(event.EventID)},
		{Key: "event_type", Value: []byte(event.EventType)},
		{Key: "routing_key", Value: []byte(event.RoutingKey)},
	}
	for k, v := range observability.InjectHeaders(ctx) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   event.Topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish outbox event to kafka",
			zap.Error(err),
			zap.String("topic", event.Topic),
			zap.String("event_id", event.EventID),
		)
		return err
	}
	return nil
}

// Close закрывает Kafka writer
func (p *OutboxPublisher) Close() error {
	return p.writer.Close()
}
