package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/bookstore-orders/internal/repository"
)

type txKey struct{}

// querier - общее подмножество pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository реализует OutboxRepository и TxManager используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// WithinTx открывает транзакцию и кладёт её в ctx; репозиторий пишет через неё, пока ctx передаётся дальше.
// Ошибка fn (или commit) откатывает всё, что было записано внутри.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Гарантируем откат транзакции в случае ошибки
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// AddOutboxEvent вставляет pending событие (в транзакции из ctx, если она есть)
func (r *Repository) AddOutboxEvent(ctx context.Context, event repository.OutboxEvent) error {
	status := event.Status
	if status == "" {
		status = repository.OutboxStatusPending
	}

	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO outbox_events (event_id, aggregate_id, event_type, topic, routing_key, payload, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.EventID, event.AggregateID, event.EventType, event.Topic, event.RoutingKey, event.Payload, status)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// GetPendingOutboxEvents возвращает до limit pending событий, старые первыми
func (r *Repository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT event_id, aggregate_id, event_type, topic, routing_key, payload, status, attempts,
		        COALESCE(last_error, ''), created_at, sent_at
		 FROM outbox_events
		 WHERE status = 'pending'
		 ORDER BY created_at, event_id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]repository.OutboxEvent, 0)
	for rows.Next() {
		var e repository.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.EventType, &e.Topic, &e.RoutingKey, &e.Payload,
			&e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkOutboxEventSent помечает событие как отправленное
func (r *Repository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return r.exec(ctx,
		`UPDATE outbox_events SET status = 'sent', sent_at = now() WHERE event_id = $1`,
		eventID)
}

// MarkOutboxEventFailed помечает событие как failed и сохраняет ошибку
func (r *Repository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	return r.exec(ctx,
		`UPDATE outbox_events SET status = 'failed', attempts = attempts + 1, last_error = $2 WHERE event_id = $1`,
		eventID, errMsg)
}

// ResetOutboxEventPending возвращает событие в pending
func (r *Repository) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	return r.exec(ctx,
		`UPDATE outbox_events SET status = 'pending' WHERE event_id = $1`,
		eventID)
}

// Ping проверяет соединение с БД
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
