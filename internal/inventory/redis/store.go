package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProcessedEventsStore реализует inventory.ProcessedEventsStore используя Redis ключи с TTL
type ProcessedEventsStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewProcessedEventsStore создаёт Redis store
func NewProcessedEventsStore(client *redis.Client, logger *zap.Logger) *ProcessedEventsStore {
	return &ProcessedEventsStore{
		client: client,
		logger: logger,
	}
}

func processedKey(key string) string {
	return fmt.Sprintf("inventory:processed:%s", key)
}

// MarkProcessed сохраняет ключ с TTL; повторный вызов продлевает TTL
func (s *ProcessedEventsStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, processedKey(key), 1, ttl).Err(); err != nil {
		s.logger.Error("failed to mark event processed in redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

// IsProcessed проверяет наличие ключа
func (s *ProcessedEventsStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKey(key)).Result()
	if err != nil {
		s.logger.Error("failed to check processed key in redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return false, fmt.Errorf("failed to check processed: %w", err)
	}
	return n > 0, nil
}

// TryMarkProcessed захватывает ключ через SET NX: из параллельных вызовов true получает только один
func (s *ProcessedEventsStore) TryMarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, processedKey(key), 1, ttl).Result()
	if err != nil {
		s.logger.Error("failed to claim processed key in redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return false, fmt.Errorf("failed to claim processed: %w", err)
	}
	return ok, nil
}

// Ping проверяет соединение с Redis (readiness)
func (s *ProcessedEventsStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
