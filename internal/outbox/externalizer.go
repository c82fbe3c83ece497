package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/domain"
	"github.com/shestoi/bookstore-orders/internal/eventbus"
	"github.com/shestoi/bookstore-orders/internal/repository"
)

// orderCompletedPayload - внешний формат OrderCompleted
type orderCompletedPayload struct {
	OrderID string `json:"orderId"`
}

// Externalizer подписывается на OrderCompleted и пишет событие в outbox.
// Вызывается синхронно из Publish, поэтому запись попадает в транзакцию вызывающего (ctx несёт tx).
type Externalizer struct {
	logger *zap.Logger
	repo   repository.OutboxRepository
}

// NewExternalizer создаёт externalizer
func NewExternalizer(logger *zap.Logger, repo repository.OutboxRepository) *Externalizer {
	return &Externalizer{logger: logger, repo: repo}
}

// Register подписывает externalizer на шину
func (x *Externalizer) Register(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, "outbox-externalizer", x.HandleOrderCompleted)
}

// HandleOrderCompleted записывает OrderCompleted в outbox для destination domain.events::order.completed
func (x *Externalizer) HandleOrderCompleted(ctx context.Context, event domain.OrderCompleted) error {
	payload, err := json.Marshal(orderCompletedPayload{OrderID: event.OrderID.String()})
	if err != nil {
		return fmt.Errorf("marshal OrderCompleted: %w", err)
	}

	outboxEvent := repository.OutboxEvent{
		EventID:     uuid.NewString(),
		AggregateID: event.OrderID.String(),
		EventType:   "OrderCompleted",
		Topic:       domain.EventsDestination,
		RoutingKey:  domain.OrderCompletedRoutingKey,
		Payload:     payload,
	}
	if err := x.repo.AddOutboxEvent(ctx, outboxEvent); err != nil {
		return fmt.Errorf("add outbox event: %w", err)
	}

	x.logger.Debug("OrderCompleted written to outbox",
		zap.String("event_id", outboxEvent.EventID),
		zap.String("order_id", outboxEvent.AggregateID),
	)
	return nil
}
