package inventory

import (
	"context"
	"sync"
	"time"
)

// MemoryProcessedEventsStore реализует ProcessedEventsStore используя in-memory map
// Используется для dev/test окружений; для нескольких инстансов нужен Redis store.
type MemoryProcessedEventsStore struct {
	mu     sync.Mutex
	events map[string]time.Time // key -> expiresAt
	now    func() time.Time
}

// NewMemoryProcessedEventsStore создаёт новый in-memory store
func NewMemoryProcessedEventsStore() *MemoryProcessedEventsStore {
	return &MemoryProcessedEventsStore{
		events: make(map[string]time.Time),
		now:    time.Now,
	}
}

// MarkProcessed сохраняет key как обработанный с указанным ttl
func (s *MemoryProcessedEventsStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ленивая очистка протухших записей
	s.cleanupExpiredLocked()

	s.events[key] = s.now().Add(ttl)
	return nil
}

// IsProcessed проверяет, был ли key уже обработан
func (s *MemoryProcessedEventsStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, exists := s.events[key]
	if !exists {
		return false, nil
	}

	if s.now().After(expiresAt) {
		delete(s.events, key)
		return false, nil
	}
	return true, nil
}

// TryMarkProcessed проверяет и помечает key под одним lock
func (s *MemoryProcessedEventsStore) TryMarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()

	if _, exists := s.events[key]; exists {
		return false, nil
	}
	s.events[key] = s.now().Add(ttl)
	return true, nil
}

// cleanupExpiredLocked удаляет протухшие записи (вызывается с уже захваченным lock)
func (s *MemoryProcessedEventsStore) cleanupExpiredLocked() {
	now := s.now()
	for key, expiresAt := range s.events {
		if now.After(expiresAt) {
			delete(s.events, key)
		}
	}
}
