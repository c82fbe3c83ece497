package inbound

import (
	"encoding/json"
	"strings"

	"github.com/shestoi/bookstore-orders/internal/domain"
)

// newOrderMessage - wire-формат сообщения из очереди new-orders.
// Указатели отличают отсутствующее поле от нулевого значения; неизвестные поля игнорируются.
type newOrderMessage struct {
	OrderNumber *string           `json:"orderNumber"`
	ProductCode *string           `json:"productCode"`
	Quantity    *int              `json:"quantity"`
	Customer    *newOrderCustomer `json:"customer"`
}

type newOrderCustomer struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// Decode разбирает payload в NewOrderRequest.
// Возвращает *DecodeError, если JSON некорректен, обязательное поле отсутствует,
// quantity не целое или не положительное.
func Decode(payload []byte) (domain.NewOrderRequest, error) {
	var msg newOrderMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.NewOrderRequest{}, &DecodeError{Message: "malformed payload", Err: err}
	}

	if msg.OrderNumber == nil || strings.TrimSpace(*msg.OrderNumber) == "" {
		return domain.NewOrderRequest{}, &DecodeError{Field: "orderNumber", Message: "orderNumber is required"}
	}
	if msg.ProductCode == nil || strings.TrimSpace(*msg.ProductCode) == "" {
		return domain.NewOrderRequest{}, &DecodeError{Field: "productCode", Message: "productCode is required"}
	}
	if msg.Quantity == nil {
		return domain.NewOrderRequest{}, &DecodeError{Field: "quantity", Message: "quantity is required"}
	}
	if *msg.Quantity <= 0 {
		return domain.NewOrderRequest{}, &DecodeError{Field: "quantity", Message: "quantity must be > 0"}
	}

	req := domain.NewOrderRequest{
		OrderNumber: *msg.OrderNumber,
		ProductCode: *msg.ProductCode,
		Quantity:    *msg.Quantity,
	}
	if msg.Customer != nil {
		req.Customer = &domain.CustomerInfo{
			Name:  msg.Customer.Name,
			Email: msg.Customer.Email,
			Phone: msg.Customer.Phone,
		}
	}

	return req, nil
}
