package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/bookstore-orders/internal/repository"
)

type txKey struct{}

// stagedTx копит записи до commit; при откате они просто отбрасываются
type stagedTx struct {
	events []repository.OutboxEvent
}

// MemoryRepository реализует OutboxRepository и TxManager используя in-memory хранилище
// Используется для разработки и тестирования
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string]repository.OutboxEvent
	seq    map[string]int64
	next   int64
}

// NewMemoryRepository создаёт новый in-memory репозиторий
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[string]repository.OutboxEvent),
		seq:    make(map[string]int64),
	}
}

// WithinTx выполняет fn в транзакции: записи fn видны остальным только после успешного завершения
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*stagedTx); ok {
		return fn(ctx)
	}

	tx := &stagedTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range tx.events {
		r.putLocked(e)
	}
	return nil
}

// AddOutboxEvent сохраняет событие; внутри WithinTx запись откладывается до commit
func (r *MemoryRepository) AddOutboxEvent(ctx context.Context, event repository.OutboxEvent) error {
	if event.Status == "" {
		event.Status = repository.OutboxStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Payload = append([]byte(nil), event.Payload...)

	if tx, ok := ctx.Value(txKey{}).(*stagedTx); ok {
		tx.events = append(tx.events, event)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(event)
	return nil
}

func (r *MemoryRepository) putLocked(event repository.OutboxEvent) {
	if _, exists := r.seq[event.EventID]; !exists {
		r.next++
		r.seq[event.EventID] = r.next
	}
	r.events[event.EventID] = event
}

// GetPendingOutboxEvents возвращает pending события в порядке добавления
func (r *MemoryRepository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]repository.OutboxEvent, 0)
	for _, e := range r.events {
		if e.Status == repository.OutboxStatusPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return r.seq[pending[i].EventID] < r.seq[pending[j].EventID]
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkOutboxEventSent помечает событие как отправленное
func (r *MemoryRepository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return r.update(eventID, func(e *repository.OutboxEvent) {
		now := time.Now().UTC()
		e.Status = repository.OutboxStatusSent
		e.SentAt = &now
	})
}

// MarkOutboxEventFailed помечает событие как failed и увеличивает счётчик попыток
func (r *MemoryRepository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	return r.update(eventID, func(e *repository.OutboxEvent) {
		e.Status = repository.OutboxStatusFailed
		e.Attempts++
		e.LastError = errMsg
	})
}

// ResetOutboxEventPending возвращает событие в pending
func (r *MemoryRepository) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	return r.update(eventID, func(e *repository.OutboxEvent) {
		e.Status = repository.OutboxStatusPending
	})
}

// GetOutboxEvent возвращает событие по ID (для тестов и отладки)
func (r *MemoryRepository) GetOutboxEvent(ctx context.Context, eventID string) (repository.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[eventID]
	if !ok {
		return repository.OutboxEvent{}, repository.ErrNotFound
	}
	return e, nil
}

// Ping всегда успешен для in-memory хранилища
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) update(eventID string, fn func(e *repository.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&e)
	r.events[eventID] = e
	return nil
}
