package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/domain"
	"github.com/shestoi/bookstore-orders/internal/repository"
	"github.com/shestoi/bookstore-orders/platform/observability"
)

// CompletionService завершает заказ: переход состояния и публикация OrderCompleted в одной транзакции.
// Одна попытка, без retry: ошибка возвращается вызывающему.
type CompletionService struct {
	logger     *zap.Logger
	tx         repository.TxManager
	publisher  EventPublisher
	transition TransitionFunc
}

// NewCompletionService создаёт сервис без собственного изменения состояния
func NewCompletionService(logger *zap.Logger, tx repository.TxManager, publisher EventPublisher) *CompletionService {
	return NewCompletionServiceWithTransition(logger, tx, publisher, nil)
}

// NewCompletionServiceWithTransition создаёт сервис с заданным переходом состояния
func NewCompletionServiceWithTransition(logger *zap.Logger, tx repository.TxManager, publisher EventPublisher, transition TransitionFunc) *CompletionService {
	if transition == nil {
		transition = func(context.Context, domain.OrderID) error { return nil }
	}
	return &CompletionService{
		logger:     logger,
		tx:         tx,
		publisher:  publisher,
		transition: transition,
	}
}

// CompleteString разбирает идентификатор и завершает заказ.
// Некорректный идентификатор - *domain.ValidationError, событие не публикуется.
func (s *CompletionService) CompleteString(ctx context.Context, raw string) (domain.OrderID, error) {
	id, err := domain.ParseOrderID(raw)
	if err != nil {
		return domain.OrderID{}, err
	}
	return id, s.Complete(ctx, id)
}

// Complete публикует ровно одно OrderCompleted(id).
// Ошибка перехода или публикации откатывает транзакцию и возвращается как *CompletionError.
func (s *CompletionService) Complete(ctx context.Context, id domain.OrderID) error {
	logger := observability.L(ctx, s.logger)

	if id.IsZero() {
		return &domain.ValidationError{Field: "order_id", Message: "order ID is required"}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.transition(ctx, id); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, domain.OrderCompleted{OrderID: id})
	})
	if err != nil {
		logger.Error("failed to complete order", zap.String("order_id", id.String()), zap.Error(err))
		return &CompletionError{OrderID: id, Err: err}
	}

	logger.Info("order completed", zap.String("order_id", id.String()))
	return nil
}
