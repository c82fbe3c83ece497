package amqp

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Connector держит одно AMQP соединение на процесс и переподключается, если брокер его закрыл.
// Каналы (consumer slot-ы, publisher) открываются поверх общего соединения.
type Connector struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnector создаёт connector; соединение устанавливается лениво
func NewConnector(logger *zap.Logger, url string) *Connector {
	return &Connector{url: url, logger: logger}
}

// Channel открывает новый канал, при необходимости переустанавливая соединение
func (c *Connector) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		c.conn = conn
		c.logger.Info("amqp connection established")
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return ch, nil
}

// Ready - соединение установлено и не закрыто (readiness)
func (c *Connector) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close закрывает соединение
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	c.logger.Info("closing amqp connection")
	return c.conn.Close()
}
