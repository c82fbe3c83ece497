package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/platform/observability"
)

// PoolConfig - параметры пула consumer slot-ов
type PoolConfig struct {
	// ServiceName - имя tracer-а для consumer span-ов
	ServiceName string
	// MinConsumers - постоянные slot-ы, живут до shutdown
	MinConsumers int
	// MaxConsumers - верхняя граница при масштабировании под нагрузкой
	MaxConsumers int
	// ScaleUpAfter - после стольких доставок подряд slot просит добавить ещё один
	ScaleUpAfter int
	// ScaleDownAfter - столько пустых окон ожидания подряд, и дополнительный slot завершается
	ScaleDownAfter int
	// IdleTimeout - длина одного окна ожидания Receive
	IdleTimeout time.Duration
	// ReconnectDelay - пауза перед повторным открытием канала после ошибки
	ReconnectDelay time.Duration
}

// DefaultPoolConfig возвращает значения по умолчанию: 2..8 consumer-ов
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		ServiceName:    "orders",
		MinConsumers:   2,
		MaxConsumers:   8,
		ScaleUpAfter:   10,
		ScaleDownAfter: 6,
		IdleTimeout:    5 * time.Second,
		ReconnectDelay: 2 * time.Second,
	}
}

// Validate проверяет согласованность параметров пула
func (c PoolConfig) Validate() error {
	if c.MinConsumers < 1 {
		return fmt.Errorf("min consumers must be >= 1, got %d", c.MinConsumers)
	}
	if c.MaxConsumers < c.MinConsumers {
		return fmt.Errorf("max consumers (%d) must be >= min consumers (%d)", c.MaxConsumers, c.MinConsumers)
	}
	if c.ScaleUpAfter < 1 || c.ScaleDownAfter < 1 {
		return errors.New("scale thresholds must be >= 1")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be > 0")
	}
	return nil
}

// Pool - набор consumer slot-ов. Каждый slot владеет своим каналом и обрабатывает
// доставки строго по одной: следующая доставка принимается только после ack/reject предыдущей.
type Pool struct {
	cfg      PoolConfig
	factory  ChannelFactory
	consumer *Consumer
	logger   *zap.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	nextID  int
	active  atomic.Int32
	running atomic.Bool
}

// NewPool создаёт пул; slot-ы запускаются в Run
func NewPool(cfg PoolConfig, factory ChannelFactory, consumer *Consumer, logger *zap.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		factory:  factory,
		consumer: consumer,
		logger:   logger,
	}
}

// Active возвращает текущее число работающих slot-ов
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Ready - пул запущен и хотя бы один slot жив
func (p *Pool) Ready() bool {
	return p.running.Load() && p.Active() > 0
}

// Run запускает MinConsumers slot-ов и блокируется до отмены ctx.
// После отмены новые доставки не принимаются, доставки в обработке доводятся до ack/reject.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid pool config: %w", err)
	}

	p.logger.Info("starting consumer pool",
		zap.Int("min_consumers", p.cfg.MinConsumers),
		zap.Int("max_consumers", p.cfg.MaxConsumers),
		zap.Int("max_attempts", p.consumer.MaxAttempts()),
	)

	p.running.Store(true)
	for i := 0; i < p.cfg.MinConsumers; i++ {
		p.startSlot(ctx, false)
	}

	<-ctx.Done()
	p.logger.Info("consumer pool stopping, draining in-flight deliveries")
	p.wg.Wait()
	p.running.Store(false)
	p.logger.Info("consumer pool stopped")
	return nil
}

func (p *Pool) startSlot(ctx context.Context, elastic bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startSlotLocked(ctx, elastic)
}

func (p *Pool) startSlotLocked(ctx context.Context, elastic bool) {
	p.nextID++
	p.active.Add(1)
	p.wg.Add(1)
	go p.runSlot(ctx, p.nextID, elastic)
}

// tryScaleUp добавляет elastic slot, если не достигнут MaxConsumers
func (p *Pool) tryScaleUp(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(p.active.Load()) >= p.cfg.MaxConsumers || ctx.Err() != nil {
		return
	}
	p.startSlotLocked(ctx, true)
	p.logger.Info("consumer pool scaled up", zap.Int32("active", p.active.Load()))
}

func (p *Pool) runSlot(ctx context.Context, id int, elastic bool) {
	defer p.wg.Done()
	defer p.active.Add(-1)

	logger := p.logger.With(zap.Int("slot", id), zap.Bool("elastic", elastic))
	logger.Debug("consumer slot started")

	var ch Channel
	defer func() {
		if ch != nil {
			if err := ch.Close(); err != nil {
				logger.Warn("failed to close channel", zap.Error(err))
			}
		}
		logger.Debug("consumer slot stopped")
	}()

	streak, idle := 0, 0
	for ctx.Err() == nil {
		if ch == nil {
			opened, err := p.factory(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("failed to open channel, will retry", zap.Error(err), zap.Duration("delay", p.cfg.ReconnectDelay))
				p.wait(ctx, p.cfg.ReconnectDelay)
				continue
			}
			ch = opened
		}

		recvCtx, cancel := context.WithTimeout(ctx, p.cfg.IdleTimeout)
		d, err := ch.Receive(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				streak = 0
				idle++
				if elastic && idle >= p.cfg.ScaleDownAfter {
					logger.Info("consumer slot idle, scaling down", zap.Int("idle_windows", idle))
					return
				}
				continue
			}

			logger.Error("receive failed, reopening channel", zap.Error(err))
			if cerr := ch.Close(); cerr != nil {
				logger.Warn("failed to close broken channel", zap.Error(cerr))
			}
			ch = nil
			p.wait(ctx, p.cfg.ReconnectDelay)
			continue
		}

		idle = 0
		streak++
		if !p.process(ctx, ch, d) {
			// канал мог не зафиксировать решение (например, reject не дошёл до DLQ).
			// Новый канал продолжит с последней подтверждённой позиции брокера.
			logger.Warn("settle failed, reopening channel", zap.Uint64("delivery_tag", d.Tag))
			if cerr := ch.Close(); cerr != nil {
				logger.Warn("failed to close channel after settle error", zap.Error(cerr))
			}
			ch = nil
			streak = 0
			p.wait(ctx, p.cfg.ReconnectDelay)
			continue
		}

		if streak >= p.cfg.ScaleUpAfter {
			streak = 0
			p.tryScaleUp(ctx)
		}
	}
}

// process доводит одну доставку до ack/reject.
// ack/reject выполняются на контексте без отмены, чтобы shutdown не оборвал решение.
// Возвращает false, если канал вернул ошибку на ack/reject и дальше им пользоваться нельзя.
func (p *Pool) process(ctx context.Context, ch Channel, d Delivery) bool {
	spanCtx, span := observability.StartConsumerSpan(ctx, p.cfg.ServiceName, d.Source, d.Headers)
	defer span.End()

	settleCtx := context.WithoutCancel(spanCtx)
	settled := true
	ack := func() error {
		if err := ch.Ack(settleCtx, d); err != nil {
			settled = false
			return &ChannelError{Op: "ack", Tag: d.Tag, Err: err}
		}
		return nil
	}
	reject := func() error {
		if err := ch.Reject(settleCtx, d, false); err != nil {
			settled = false
			return &ChannelError{Op: "reject", Tag: d.Tag, Err: err}
		}
		return nil
	}

	logger := observability.L(spanCtx, p.logger)
	if d.Redelivered {
		logger.Info("processing redelivered message", zap.Uint64("delivery_tag", d.Tag), zap.String("source", d.Source))
	}

	outcome := p.consumer.Consume(spanCtx, d.Body, ack, reject)
	span.SetAttributes(
		attribute.String("messaging.outcome", outcome.String()),
		attribute.Int64("messaging.delivery_tag", int64(d.Tag)),
		attribute.Bool("messaging.settled", settled),
	)
	return settled
}

func (p *Pool) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
