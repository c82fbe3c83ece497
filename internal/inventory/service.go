package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/domain"
	"github.com/shestoi/bookstore-orders/internal/eventbus"
	"github.com/shestoi/bookstore-orders/platform/observability"
)

// Service - downstream подписчик шины: резервирует товар по OrderCreated и фиксирует OrderCompleted.
// Не вызывается pipeline-ом напрямую, только через eventbus.
type Service struct {
	logger *zap.Logger
	store  ProcessedEventsStore
	ttl    time.Duration

	mu        sync.RWMutex
	reserved  map[string]int // productCode -> зарезервированное количество
	completed int
}

// NewService создаёт inventory сервис
func NewService(logger *zap.Logger, store ProcessedEventsStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		logger:   logger,
		store:    store,
		ttl:      ttl,
		reserved: make(map[string]int),
	}
}

// Register подписывает сервис на события шины. Вызывается при wiring-е, до старта consumer-ов.
func (s *Service) Register(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, "inventory-order-created", s.HandleOrderCreated)
	eventbus.Subscribe(bus, "inventory-order-completed", s.HandleOrderCompleted)
}

// HandleOrderCreated резервирует quantity товара productCode; повтор того же orderNumber пропускается
func (s *Service) HandleOrderCreated(ctx context.Context, event domain.OrderCreated) error {
	logger := observability.L(ctx, s.logger)
	key := "order-created:" + event.OrderNumber

	claimed, err := s.store.TryMarkProcessed(ctx, key, s.ttl)
	if err != nil {
		return fmt.Errorf("claim processed %s: %w", key, err)
	}
	if !claimed {
		logger.Info("OrderCreated already processed, skipping",
			zap.String("order_number", event.OrderNumber),
		)
		return nil
	}

	s.mu.Lock()
	s.reserved[event.ProductCode] += event.Quantity
	total := s.reserved[event.ProductCode]
	s.mu.Unlock()

	logger.Info("stock reserved for new order",
		zap.String("order_number", event.OrderNumber),
		zap.String("product_code", event.ProductCode),
		zap.Int("quantity", event.Quantity),
		zap.Int("reserved_total", total),
	)
	return nil
}

// HandleOrderCompleted фиксирует завершение заказа
func (s *Service) HandleOrderCompleted(ctx context.Context, event domain.OrderCompleted) error {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()

	observability.L(ctx, s.logger).Info("order completed, inventory notified",
		zap.String("order_id", event.OrderID.String()),
	)
	return nil
}

// Reserved возвращает зарезервированное количество товара
func (s *Service) Reserved(productCode string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reserved[productCode]
}

// Completed возвращает число полученных OrderCompleted
func (s *Service) Completed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed
}
