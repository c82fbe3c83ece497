package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/inbound"
	kafkacfg "github.com/shestoi/bookstore-orders/platform/kafka"
)

// rejectReason пишется в DLQ конверт для сообщений, исчерпавших попытки
const rejectReason = "max delivery attempts exhausted"

// Channel реализует inbound.Channel поверх kafka-go Reader.
// At-least-once: FetchMessage, затем CommitMessages только после ack/reject.
// В Kafka нет reject, поэтому Reject(requeue=false) публикует сообщение в DLQ топик и коммитит offset.
type Channel struct {
	logger *zap.Logger
	reader messageReader
	dlq    *DLQPublisher
}

// NewChannelFactory возвращает фабрику каналов: у каждого consumer slot-а свой Reader в общей consumer group
func NewChannelFactory(logger *zap.Logger, cfg kafkacfg.Config, prefetch int, dlq *DLQPublisher) inbound.ChannelFactory {
	return func(ctx context.Context) (inbound.Channel, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers are not configured")
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:       cfg.Brokers,
			GroupID:       cfg.GroupID,
			Topic:         cfg.NewOrdersTopic,
			MinBytes:      1,
			MaxBytes:      10e6, // 10MB
			QueueCapacity: prefetch,
		})

		logger.Info("kafka channel opened",
			zap.String("topic", cfg.NewOrdersTopic),
			zap.String("group_id", cfg.GroupID),
			zap.Int("prefetch", prefetch),
		)
		return newChannel(logger, reader, dlq), nil
	}
}

func newChannel(logger *zap.Logger, reader messageReader, dlq *DLQPublisher) *Channel {
	return &Channel{logger: logger, reader: reader, dlq: dlq}
}

// Receive забирает следующее сообщение без коммита offset-а
func (c *Channel) Receive(ctx context.Context) (inbound.Delivery, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return inbound.Delivery{}, err
	}

	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return inbound.Delivery{
		Body:    m.Value,
		Tag:     uint64(m.Offset),
		Source:  m.Topic,
		Headers: headers,
		Raw:     m,
	}, nil
}

// Ack коммитит offset сообщения
func (c *Channel) Ack(ctx context.Context, d inbound.Delivery) error {
	m, err := message(d)
	if err != nil {
		return err
	}
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}

	c.logger.Debug("message offset committed",
		zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)
	return nil
}

// Reject с requeue=false публикует сообщение в DLQ и коммитит offset.
// Если DLQ недоступен, offset не коммитится и возвращается ошибка: pool закрывает канал,
// новый reader группы начинает с последнего закоммиченного offset-а, и сообщение доставляется повторно.
// requeue=true оставляет offset незакоммиченным.
func (c *Channel) Reject(ctx context.Context, d inbound.Delivery, requeue bool) error {
	m, err := message(d)
	if err != nil {
		return err
	}

	if requeue {
		c.logger.Warn("message left uncommitted for redelivery",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		return nil
	}

	if err := c.dlq.Publish(ctx, m, rejectReason); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset after dlq: %w", err)
	}
	return nil
}

// Close закрывает reader
func (c *Channel) Close() error {
	c.logger.Info("closing kafka channel")
	return c.reader.Close()
}

func message(d inbound.Delivery) (kafka.Message, error) {
	m, ok := d.Raw.(kafka.Message)
	if !ok {
		return kafka.Message{}, fmt.Errorf("delivery %d is not a kafka message", d.Tag)
	}
	return m, nil
}
