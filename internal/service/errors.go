package service

import (
	"fmt"

	"github.com/shestoi/bookstore-orders/internal/domain"
)

// CompletionError - завершение заказа не удалось; транзакция откатена, причина в Err
type CompletionError struct {
	OrderID domain.OrderID
	Err     error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("complete order %s: %v", e.OrderID, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}
