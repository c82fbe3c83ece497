package service

import (
	"context"

	"github.com/shestoi/bookstore-orders/internal/domain"
)

// EventPublisher публикует доменные события синхронно (реализуется eventbus.Bus)
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// TransitionFunc - изменение состояния заказа при завершении; выполняется в той же транзакции, что и публикация
type TransitionFunc func(ctx context.Context, id domain.OrderID) error
