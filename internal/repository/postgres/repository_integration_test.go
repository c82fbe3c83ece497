//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/shestoi/bookstore-orders/internal/repository"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("orders"),
		postgres.WithUsername("order_user"),
		postgres.WithPassword("order_password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, postgresContainer)
	require.NoError(t, err)

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Накатываем встроенные миграции
	require.NoError(t, Migrate(ctx, dsn), "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)
	require.NoError(t, repo.Ping(ctx))

	newEvent := func() repository.OutboxEvent {
		orderID := uuid.NewString()
		return repository.OutboxEvent{
			EventID:     uuid.NewString(),
			AggregateID: orderID,
			EventType:   "OrderCompleted",
			Topic:       "domain.events",
			RoutingKey:  "order.completed",
			Payload:     []byte(`{"orderId":"` + orderID + `"}`),
		}
	}

	t.Run("WithinTx commit makes event pending", func(t *testing.T) {
		event := newEvent()
		err := repo.WithinTx(ctx, func(ctx context.Context) error {
			return repo.AddOutboxEvent(ctx, event)
		})
		require.NoError(t, err)

		pending, err := repo.GetPendingOutboxEvents(ctx, 100)
		require.NoError(t, err)
		require.True(t, containsEvent(pending, event.EventID))
	})

	t.Run("WithinTx rollback discards event", func(t *testing.T) {
		event := newEvent()
		boom := errors.New("boom")
		err := repo.WithinTx(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.AddOutboxEvent(ctx, event))
			return boom
		})
		require.ErrorIs(t, err, boom)

		pending, err := repo.GetPendingOutboxEvents(ctx, 100)
		require.NoError(t, err)
		require.False(t, containsEvent(pending, event.EventID))
	})

	t.Run("Sent, failed and reset transitions", func(t *testing.T) {
		sent := newEvent()
		failed := newEvent()
		require.NoError(t, repo.AddOutboxEvent(ctx, sent))
		require.NoError(t, repo.AddOutboxEvent(ctx, failed))

		require.NoError(t, repo.MarkOutboxEventSent(ctx, sent.EventID))
		require.NoError(t, repo.MarkOutboxEventFailed(ctx, failed.EventID, "broker down"))

		pending, err := repo.GetPendingOutboxEvents(ctx, 100)
		require.NoError(t, err)
		require.False(t, containsEvent(pending, sent.EventID))
		require.False(t, containsEvent(pending, failed.EventID))

		require.NoError(t, repo.ResetOutboxEventPending(ctx, failed.EventID))
		pending, err = repo.GetPendingOutboxEvents(ctx, 100)
		require.NoError(t, err)
		require.True(t, containsEvent(pending, failed.EventID))
		for _, e := range pending {
			if e.EventID == failed.EventID {
				require.Equal(t, 1, e.Attempts)
				require.Equal(t, "broker down", e.LastError)
				require.JSONEq(t, string(failed.Payload), string(e.Payload))
			}
		}
	})

	t.Run("Unknown event", func(t *testing.T) {
		err := repo.MarkOutboxEventSent(ctx, uuid.NewString())
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
	})
}

func containsEvent(events []repository.OutboxEvent, id string) bool {
	for _, e := range events {
		if e.EventID == id {
			return true
		}
	}
	return false
}
