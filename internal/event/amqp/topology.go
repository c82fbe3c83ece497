package amqp

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена inbound топологии новых заказов
const (
	BookStoreExchange   = "BookStoreExchange"
	BookStoreDLX        = "BookStoreExchange.dlx"
	NewOrdersQueue      = "new-orders"
	NewOrdersDLQ        = "new-orders.dlq"
	OrdersNewRouting    = "orders.new"
	OrdersNewDLQRouting = "orders.new.dlq"
)

// ExchangeSpec описывает exchange
type ExchangeSpec struct {
	Name    string
	Kind    string
	Durable bool
}

// QueueSpec описывает очередь
type QueueSpec struct {
	Name    string
	Durable bool
	Args    amqp.Table
}

// BindingSpec связывает очередь с exchange по routing key
type BindingSpec struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// Topology - набор объявлений брокера
type Topology struct {
	Exchanges []ExchangeSpec
	Queues    []QueueSpec
	Bindings  []BindingSpec
}

// NewOrderTopology описывает очередь new-orders с dead-letter маршрутизацией:
// reject без requeue уводит сообщение через BookStoreExchange.dlx в new-orders.dlq.
func NewOrderTopology() Topology {
	return Topology{
		Exchanges: []ExchangeSpec{
			{Name: BookStoreExchange, Kind: amqp.ExchangeDirect, Durable: true},
			{Name: BookStoreDLX, Kind: amqp.ExchangeDirect, Durable: true},
		},
		Queues: []QueueSpec{
			{
				Name:    NewOrdersQueue,
				Durable: true,
				Args: amqp.Table{
					"x-dead-letter-exchange":    BookStoreDLX,
					"x-dead-letter-routing-key": OrdersNewDLQRouting,
				},
			},
			{Name: NewOrdersDLQ, Durable: true},
		},
		Bindings: []BindingSpec{
			{Queue: NewOrdersQueue, Exchange: BookStoreExchange, RoutingKey: OrdersNewRouting},
			{Queue: NewOrdersDLQ, Exchange: BookStoreDLX, RoutingKey: OrdersNewDLQRouting},
		},
	}
}

// declarer - часть *amqp.Channel для объявления топологии
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology объявляет exchanges, очереди и bindings. Операции идемпотентны на стороне брокера.
func DeclareTopology(ch declarer, t Topology) error {
	for _, e := range t.Exchanges {
		if err := ch.ExchangeDeclare(e.Name, e.Kind, e.Durable, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", e.Name, err)
		}
	}
	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, q.Durable, false, false, false, q.Args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}
	for _, b := range t.Bindings {
		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s -> %s (%s): %w", b.Exchange, b.Queue, b.RoutingKey, err)
		}
	}
	return nil
}
