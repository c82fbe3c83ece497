package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/bookstore-orders/internal/config"
	"github.com/shestoi/bookstore-orders/internal/domain"
	platformkafka "github.com/shestoi/bookstore-orders/platform/kafka"
)

// testConfig собирает конфигурацию без внешних зависимостей: память + kafka (writer-ы не подключаются до первой записи)
func testConfig() config.Config {
	return config.Config{
		AppEnv:              config.EnvLocal,
		HTTPAddr:            "127.0.0.1:0",
		ShutdownTimeout:     time.Second,
		LogLevel:            "error",
		LogFormat:           "json",
		Broker:              config.BrokerKafka,
		Kafka:               platformkafka.DefaultConfig(),
		ConsumerMin:         1,
		ConsumerMax:         2,
		ConsumerPrefetch:    10,
		ConsumerIdleTimeout: time.Second,
		MaxAttempts:         3,
		Storage:             config.StorageMemory,
		OutboxBatchSize:     10,
		OutboxInterval:      time.Second,
		OutboxMaxRetries:    1,
		IdempotencyStore:    config.IdempotencyMemory,
		IdempotencyTTL:      time.Hour,
	}
}

func TestBuild_CompleteOrderEndpoint(t *testing.T) {
	a, err := Build(testConfig())
	require.NoError(t, err)
	t.Cleanup(a.shutdownMgr.Shutdown)

	id := domain.NewOrderID()
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/"+id.String()+"/complete", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Order "+id.String()+" completed (event published)", rec.Body.String())

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/nope/complete", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuild_HealthNotReadyBeforePoolStarts(t *testing.T) {
	a, err := Build(testConfig())
	require.NoError(t, err)
	t.Cleanup(a.shutdownMgr.Shutdown)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "consumer_pool")
	assert.NotContains(t, rec.Body.String(), "storage")
}

func TestBuild_UnsupportedBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker = "nats"

	_, err := Build(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported broker")
}

func TestStopAndWait(t *testing.T) {
	t.Run("waits for task", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(done)
		}()

		require.NoError(t, stopAndWait(cancel, done)(context.Background()))
	})

	t.Run("gives up on shutdown timeout", func(t *testing.T) {
		_, cancel := context.WithCancel(context.Background())
		ctx, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer stop()

		err := stopAndWait(cancel, make(chan struct{}))(ctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestPingReady(t *testing.T) {
	assert.True(t, pingReady(func(context.Context) error { return nil })())
	assert.False(t, pingReady(func(context.Context) error { return errors.New("down") })())
}
