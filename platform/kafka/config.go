package kafka

// Config содержит конфигурацию для подключения к Kafka
type Config struct {
	// Brokers - список брокеров Kafka.
	//   - локальная разработка (go run): localhost:19092
	//   - запуск в Docker: kafka:9092
	// Несколько брокеров через запятую: "broker1:9092,broker2:9092"
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// GroupID - consumer group для входящих заказов; все consumer slots состоят в одной группе
	GroupID string `env:"KAFKA_GROUP_ID" envDefault:"orders-new-orders"`
	// NewOrdersTopic - входящий топик с новыми заказами
	NewOrdersTopic string `env:"KAFKA_NEW_ORDERS_TOPIC" envDefault:"new-orders"`
	// DLQTopic - топик для сообщений, исчерпавших попытки
	DLQTopic string `env:"KAFKA_DLQ_TOPIC" envDefault:"new-orders.dlq"`
}

// DefaultConfig возвращает конфигурацию с дефолтными значениями для локальной разработки.
func DefaultConfig() Config {
	return Config{
		Brokers:        []string{"localhost:19092"},
		GroupID:        "orders-new-orders",
		NewOrdersTopic: "new-orders",
		DLQTopic:       "new-orders.dlq",
	}
}
