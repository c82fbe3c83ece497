package inventory

import (
	"context"
	"time"
)

// ProcessedEventsStore хранит ключи уже обработанных событий.
// Повторная доставка (retry consumer-а, redelivery брокера) не должна резервировать товар дважды.
type ProcessedEventsStore interface {
	// MarkProcessed сохраняет key как обработанный. Должен быть idempotent сам по себе.
	// ttl определяет время жизни записи (после истечения ttl событие может быть обработано повторно).
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error

	// IsProcessed возвращает true если key уже был обработан и ещё не истёк ttl.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// TryMarkProcessed атомарно помечает key, если его ещё нет.
	// true - ключ захвачен этим вызовом; false - событие уже обработано (или обрабатывается) другим вызовом.
	TryMarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
