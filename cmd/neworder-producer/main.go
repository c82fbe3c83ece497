// Package main отправляет тестовый новый заказ в Kafka топик входящих заказов.
//
// Используется для ручной проверки пайплайна при BROKER=kafka:
//   - KAFKA_BROKERS (по умолчанию localhost:19092)
//   - KAFKA_NEW_ORDERS_TOPIC (по умолчанию new-orders)
//   - ORDER_NUMBER, PRODUCT_CODE, QUANTITY - поля заказа
//   - RAW_PAYLOAD - отправить тело как есть (например "not-json", чтобы проверить DLQ)
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	platformkafka "github.com/shestoi/bookstore-orders/platform/kafka"
	platformlogging "github.com/shestoi/bookstore-orders/platform/logging"
)

type orderParams struct {
	OrderNumber   string `env:"ORDER_NUMBER"`
	ProductCode   string `env:"PRODUCT_CODE" envDefault:"BOOK-1"`
	Quantity      int    `env:"QUANTITY" envDefault:"1"`
	CustomerName  string `env:"CUSTOMER_NAME"`
	CustomerEmail string `env:"CUSTOMER_EMAIL"`
	RawPayload    string `env:"RAW_PAYLOAD"`
}

type customerPayload struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type newOrderPayload struct {
	OrderNumber string           `json:"orderNumber"`
	ProductCode string           `json:"productCode"`
	Quantity    int              `json:"quantity"`
	Customer    *customerPayload `json:"customer,omitempty"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "neworder-producer",
		Env:         "local",
		Level:       "info",
		Format:      "console",
		AddCaller:   true,
	})
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer platformlogging.Sync(logger)

	cfg := platformkafka.DefaultConfig()
	if err := platformkafka.LoadEnv(&cfg); err != nil {
		logger.Error("failed to load kafka config", zap.Error(err))
		os.Exit(1)
	}

	var params orderParams
	if err := env.Parse(&params); err != nil {
		logger.Error("failed to load order params", zap.Error(err))
		os.Exit(1)
	}

	value, key, err := buildMessage(params)
	if err != nil {
		logger.Error("failed to build message", zap.Error(err))
		os.Exit(1)
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.NewOrdersTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close kafka writer", zap.Error(err))
		}
	}()

	fields := []zap.Field{
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.NewOrdersTopic),
		zap.String("key", key),
		zap.ByteString("value", value),
	}

	if err := writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		logger.Error("failed to send new order", append(fields, zap.Error(err))...)
		os.Exit(1)
	}

	logger.Info("new order sent", fields...)
}

// buildMessage возвращает тело и ключ сообщения; ключ - номер заказа
func buildMessage(p orderParams) ([]byte, string, error) {
	if p.RawPayload != "" {
		return []byte(p.RawPayload), "raw", nil
	}

	if p.OrderNumber == "" {
		p.OrderNumber = "A-" + uuid.NewString()[:8]
	}

	msg := newOrderPayload{
		OrderNumber: p.OrderNumber,
		ProductCode: p.ProductCode,
		Quantity:    p.Quantity,
	}
	if p.CustomerName != "" || p.CustomerEmail != "" {
		msg.Customer = &customerPayload{}
		if p.CustomerName != "" {
			msg.Customer.Name = &p.CustomerName
		}
		if p.CustomerEmail != "" {
			msg.Customer.Email = &p.CustomerEmail
		}
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return nil, "", err
	}
	return value, p.OrderNumber, nil
}
