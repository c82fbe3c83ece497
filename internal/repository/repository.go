package repository

import (
	"context"
	"errors"
	"time"
)

// Статусы outbox события
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxEvent - событие, записанное в outbox внутри транзакции и ожидающее публикации во внешний брокер
type OutboxEvent struct {
	EventID     string
	AggregateID string // order_id, используется как ключ сообщения
	EventType   string
	Topic       string // destination: kafka topic / amqp exchange
	RoutingKey  string
	Payload     []byte
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	SentAt      *time.Time
}

// OutboxRepository определяет интерфейс для работы с outbox таблицей.
// AddOutboxEvent участвует в транзакции из ctx, если она есть.
type OutboxRepository interface {
	// AddOutboxEvent записывает событие со статусом pending
	AddOutboxEvent(ctx context.Context, event OutboxEvent) error

	// GetPendingOutboxEvents возвращает до limit pending событий в порядке создания
	GetPendingOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)

	// MarkOutboxEventSent помечает событие как опубликованное
	MarkOutboxEventSent(ctx context.Context, eventID string) error

	// MarkOutboxEventFailed фиксирует неудачную публикацию и текст ошибки
	MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error

	// ResetOutboxEventPending возвращает событие в pending для следующего цикла dispatcher-а
	ResetOutboxEventPending(ctx context.Context, eventID string) error

	// Ping проверяет доступность хранилища (readiness)
	Ping(ctx context.Context) error
}

// TxManager задаёт транзакционную границу.
// Всё, что fn пишет через репозитории с переданным ctx, фиксируется атомарно или откатывается целиком.
// Вложенный WithinTx присоединяется к внешней транзакции.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrNotFound возвращается, когда outbox событие не найдено в хранилище
var ErrNotFound = errors.New("outbox event not found")
