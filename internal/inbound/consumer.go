package inbound

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/domain"
)

// DefaultMaxAttempts - сколько раз обрабатывается доставка до dead-letter, если не задано иначе
const DefaultMaxAttempts = 3

// MaxRetryBackoff - верхняя граница паузы между попытками.
// Пауза не прерывается shutdown-ом, поэтому она ограничивает и время drain-а одной доставки.
const MaxRetryBackoff = 10 * time.Second

// Outcome - терминальное состояние доставки
type Outcome int

const (
	// OutcomeAcknowledged - доставка обработана и подтверждена (ack)
	OutcomeAcknowledged Outcome = iota + 1
	// OutcomeRejected - попытки исчерпаны, доставка отклонена без requeue (уходит в DLQ)
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// EventPublisher - то, что нужно consumer-у от шины событий
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// HandleFunc - одна попытка обработки payload: decode -> OrderCreated -> publish
type HandleFunc func(ctx context.Context, payload []byte) error

// Consumer оборачивает обработку доставки в цикл с ограниченным числом попыток
// и принимает терминальное решение ack/reject.
type Consumer struct {
	logger      *zap.Logger
	handle      HandleFunc
	maxAttempts int
	backoffBase time.Duration
	sleeper     Sleeper
}

// NewConsumer создаёт consumer, публикующий OrderCreated в шину.
// backoffBase == 0 - повторные попытки выполняются сразу.
func NewConsumer(logger *zap.Logger, publisher EventPublisher, maxAttempts int, backoffBase time.Duration) *Consumer {
	c := NewConsumerWithHandler(logger, nil, maxAttempts, backoffBase, &DefaultSleeper{})
	c.handle = func(ctx context.Context, payload []byte) error {
		return handleNewOrder(ctx, c.logger, publisher, payload)
	}
	return c
}

// NewConsumerWithHandler создаёт consumer с произвольным обработчиком и sleeper-ом (для тестов)
func NewConsumerWithHandler(logger *zap.Logger, handle HandleFunc, maxAttempts int, backoffBase time.Duration, sleeper Sleeper) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoffBase < 0 {
		backoffBase = 0
	}
	if sleeper == nil {
		sleeper = &DefaultSleeper{}
	}
	return &Consumer{
		logger:      logger,
		handle:      handle,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		sleeper:     sleeper,
	}
}

// MaxAttempts возвращает бюджет попыток на одну доставку
func (c *Consumer) MaxAttempts() int {
	return c.maxAttempts
}

// Consume обрабатывает одну доставку: до maxAttempts попыток, затем ровно один ack или reject.
// Начатый цикл не прерывается отменой ctx: решение ack/reject не должно теряться при shutdown.
func (c *Consumer) Consume(ctx context.Context, payload []byte, ack, reject func() error) Outcome {
	ctx = context.WithoutCancel(ctx)
	settlement := NewSettlement(ack, reject)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 && c.backoffBase > 0 {
			backoff := c.backoff(attempt)
			c.logger.Info("retrying delivery",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("backoff", backoff),
			)
			_ = c.sleeper.Sleep(ctx, backoff)
		}

		err := c.handle(ctx, payload)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("delivery processed successfully after retry", zap.Int("attempt", attempt))
			}
			c.settle(settlement.Ack, "ack")
			return OutcomeAcknowledged
		}

		lastErr = err
		c.logger.Warn("failed to process delivery",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	c.logger.Error("exhausted all retry attempts - rejecting to dead letter",
		zap.Error(lastErr),
		zap.Int("max_attempts", c.maxAttempts),
		zap.Int("payload_bytes", len(payload)),
	)
	c.settle(settlement.Reject, "reject")
	return OutcomeRejected
}

// backoff возвращает паузу перед попыткой attempt (>= 2): base * 2^(attempt-2), не больше MaxRetryBackoff
func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for i := 2; i < attempt && d < MaxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, MaxRetryBackoff)
}

// settle вызывает ack/reject; ошибка канала только логируется
func (c *Consumer) settle(fn func() error, op string) {
	err := fn()
	if err == nil {
		return
	}

	var chErr *ChannelError
	if !errors.As(err, &chErr) {
		chErr = &ChannelError{Op: op, Err: err}
	}
	c.logger.Error("failed to settle delivery", zap.String("op", op), zap.Error(chErr))
}

// handleNewOrder - одна попытка: decode, перевод в OrderCreated, синхронная публикация
func handleNewOrder(ctx context.Context, logger *zap.Logger, publisher EventPublisher, payload []byte) error {
	req, err := Decode(payload)
	if err != nil {
		return err
	}

	event := domain.OrderCreatedFrom(req)
	if err := publisher.Publish(ctx, event); err != nil {
		return err
	}

	logger.Info("published OrderCreated",
		zap.String("order_number", event.OrderNumber),
		zap.String("product_code", event.ProductCode),
		zap.Int("quantity", event.Quantity),
	)
	return nil
}
