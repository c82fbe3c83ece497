package domain

const (
	// EventsDestination - внешний топик/exchange для доменных событий
	EventsDestination = "domain.events"
	// OrderCompletedRoutingKey - ключ маршрутизации OrderCompleted во внешнем брокере
	OrderCompletedRoutingKey = "order.completed"
)

// OrderCreated - внутреннее событие, зеркалирующее NewOrderRequest.
// Создаётся ровно один раз на успешно декодированную доставку.
type OrderCreated struct {
	OrderNumber string
	ProductCode string
	Quantity    int
	Customer    *CustomerInfo
}

// OrderCreatedFrom переводит входящий запрос во внутреннее событие
func OrderCreatedFrom(req NewOrderRequest) OrderCreated {
	var customer *CustomerInfo
	if req.Customer != nil {
		c := *req.Customer
		customer = &c
	}
	return OrderCreated{
		OrderNumber: req.OrderNumber,
		ProductCode: req.ProductCode,
		Quantity:    req.Quantity,
		Customer:    customer,
	}
}

// OrderCompleted публикуется один раз на каждый успешный вызов Complete
// и экспортируется наружу в domain.events с ключом order.completed.
type OrderCompleted struct {
	OrderID OrderID
}
