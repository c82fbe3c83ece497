package domain

import (
	"strings"

	"github.com/google/uuid"
)

const canonicalUUIDLen = 36

// OrderID - непрозрачный 128-битный идентификатор заказа
type OrderID struct {
	uuid.UUID
}

// NewOrderID генерирует новый случайный идентификатор
func NewOrderID() OrderID {
	return OrderID{UUID: uuid.New()}
}

// ParseOrderID разбирает каноническую строковую форму идентификатора
// Возвращает *ValidationError, если строка пустая или не является UUID
func ParseOrderID(s string) (OrderID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OrderID{}, &ValidationError{Field: "order_id", Message: "order ID must not be empty"}
	}

	// только каноническая форма 8-4-4-4-12; urn:uuid:, {...} и 32 hex без дефисов не принимаются
	if len(s) != canonicalUUIDLen {
		return OrderID{}, &ValidationError{Field: "order_id", Message: "order ID is not a valid UUID: " + s}
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return OrderID{}, &ValidationError{Field: "order_id", Message: "order ID is not a valid UUID: " + s, Err: err}
	}
	if id == uuid.Nil {
		return OrderID{}, &ValidationError{Field: "order_id", Message: "order ID must not be nil UUID"}
	}

	return OrderID{UUID: id}, nil
}

// IsZero сообщает, что идентификатор отсутствует
func (id OrderID) IsZero() bool {
	return id.UUID == uuid.Nil
}

// CustomerInfo - необязательные данные покупателя.
// nil-поле означает "не пришло в сообщении" и не превращается в пустую строку.
type CustomerInfo struct {
	Name  *string
	Email *string
	Phone *string
}

// NewOrderRequest - декодированное входящее сообщение о новом заказе
type NewOrderRequest struct {
	OrderNumber string
	ProductCode string
	Quantity    int
	Customer    *CustomerInfo
}
