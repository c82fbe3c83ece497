package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/repository"
)

// Publisher отправляет outbox событие во внешний брокер (kafka topic / amqp exchange)
type Publisher interface {
	Publish(ctx context.Context, event repository.OutboxEvent) error
}

// DispatcherConfig - параметры цикла dispatcher-а
type DispatcherConfig struct {
	BatchSize  int           // сколько событий забирать за один проход
	Interval   time.Duration // пауза между проходами
	MaxRetries int           // попыток публикации одного события за проход
	Backoff    time.Duration // базовая пауза между попытками (растёт линейно)
}

// Dispatcher обрабатывает события из outbox таблицы и публикует их через Publisher
type Dispatcher struct {
	logger    *zap.Logger
	repo      repository.OutboxRepository
	publisher Publisher
	cfg       DispatcherConfig
}

// NewDispatcher создаёт новый outbox dispatcher
func NewDispatcher(logger *zap.Logger, repo repository.OutboxRepository, publisher Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return &Dispatcher{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Start запускает dispatcher и блокируется до отмены ctx
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("max_retries", d.cfg.MaxRetries),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	// Обрабатываем сразу при старте dispatcher
	if err := d.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("failed to process initial batch", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher context cancelled, stopping")
			return nil
		case <-ticker.C:
			if err := d.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("failed to process batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch публикует один батч pending событий.
// Ошибка отдельного события логируется и не останавливает батч.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	events, err := d.repo.GetPendingOutboxEvents(ctx, d.cfg.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("processing outbox batch", zap.Int("count", len(events)))

	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := d.processEvent(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to process event",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
			)
		}
	}

	return nil
}

// processEvent публикует одно событие с retry
func (d *Dispatcher) processEvent(ctx context.Context, event repository.OutboxEvent) error {
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		err := d.publisher.Publish(ctx, event)
		if err == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if markErr := d.repo.MarkOutboxEventSent(ctx, event.EventID); markErr != nil {
				d.logger.Error("failed to mark event as sent",
					zap.Error(markErr),
					zap.String("event_id", event.EventID),
				)
				return markErr
			}

			d.logger.Info("outbox event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.String("routing_key", event.RoutingKey),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = err
		d.logger.Warn("failed to publish outbox event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.String("topic", event.Topic),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", d.cfg.MaxRetries),
		)

		if attempt < d.cfg.MaxRetries && d.cfg.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	errMsg := fmt.Sprintf("failed after %d attempts: %v", d.cfg.MaxRetries, lastErr)
	if markErr := d.repo.MarkOutboxEventFailed(ctx, event.EventID, errMsg); markErr != nil {
		d.logger.Error("failed to mark event as failed",
			zap.Error(markErr),
			zap.String("event_id", event.EventID),
		)
		return markErr
	}

	// Сбрасываем на pending для следующего цикла (retry на уровне dispatcher)
	if resetErr := d.repo.ResetOutboxEventPending(ctx, event.EventID); resetErr != nil {
		d.logger.Error("failed to reset event to pending",
			zap.Error(resetErr),
			zap.String("event_id", event.EventID),
		)
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", d.cfg.MaxRetries, lastErr)
}
