package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// messageWriter - часть *kafka.Writer, нужная publisher-ам (подменяется в тестах)
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader - часть *kafka.Reader, нужная каналу (подменяется в тестах)
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
