package inbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/domain"
	"github.com/shestoi/bookstore-orders/internal/eventbus"
)

// MockSleeper запоминает задержки и не ждёт реального времени
type MockSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (m *MockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, d)
	return nil
}

// MockEventPublisher реализует EventPublisher для тестов
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event any) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// settleRecorder считает вызовы ack/reject
type settleRecorder struct {
	acks    atomic.Int32
	rejects atomic.Int32
}

func (r *settleRecorder) ack() error {
	r.acks.Add(1)
	return nil
}

func (r *settleRecorder) reject() error {
	r.rejects.Add(1)
	return nil
}

const validPayload = `{"orderNumber":"A123","productCode":"P9","quantity":2}`

func TestConsumer_FlakyHandlerAcksAfterRetries(t *testing.T) {
	calls := 0
	handle := func(ctx context.Context, payload []byte) error {
		calls++
		if calls <= 2 {
			return errors.New("transient")
		}
		return nil
	}
	sleeper := &MockSleeper{}
	c := NewConsumerWithHandler(zap.NewNop(), handle, 3, 100*time.Millisecond, sleeper)

	rec := &settleRecorder{}
	outcome := c.Consume(context.Background(), []byte(validPayload), rec.ack, rec.reject)

	assert.Equal(t, OutcomeAcknowledged, outcome)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int32(1), rec.acks.Load())
	assert.Equal(t, int32(0), rec.rejects.Load())
	// экспоненциальный backoff: base, base*2
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.calls)
}

func TestConsumer_BackoffIsCapped(t *testing.T) {
	handle := func(ctx context.Context, payload []byte) error {
		return errors.New("boom")
	}
	sleeper := &MockSleeper{}
	c := NewConsumerWithHandler(zap.NewNop(), handle, 80, 3*time.Second, sleeper)

	rec := &settleRecorder{}
	assert.Equal(t, OutcomeRejected, c.Consume(context.Background(), []byte(validPayload), rec.ack, rec.reject))

	require.Len(t, sleeper.calls, 79)
	assert.Equal(t, 3*time.Second, sleeper.calls[0])
	assert.Equal(t, 6*time.Second, sleeper.calls[1])
	for _, d := range sleeper.calls[2:] {
		assert.Equal(t, MaxRetryBackoff, d)
	}
}

func TestConsumer_AlwaysFailingHandlerRejectsOnce(t *testing.T) {
	calls := 0
	handle := func(ctx context.Context, payload []byte) error {
		calls++
		return errors.New("boom")
	}
	c := NewConsumerWithHandler(zap.NewNop(), handle, 3, 0, &MockSleeper{})

	rec := &settleRecorder{}
	outcome := c.Consume(context.Background(), []byte(validPayload), rec.ack, rec.reject)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int32(0), rec.acks.Load())
	assert.Equal(t, int32(1), rec.rejects.Load())
}

func TestConsumer_SingleAttemptBudget(t *testing.T) {
	calls := 0
	handle := func(ctx context.Context, payload []byte) error {
		calls++
		return errors.New("boom")
	}
	c := NewConsumerWithHandler(zap.NewNop(), handle, 1, 0, &MockSleeper{})

	rec := &settleRecorder{}
	outcome := c.Consume(context.Background(), nil, rec.ack, rec.reject)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(1), rec.rejects.Load())
}

func TestConsumer_NonPositiveMaxAttemptsFallsBackToDefault(t *testing.T) {
	c := NewConsumerWithHandler(zap.NewNop(), func(context.Context, []byte) error { return nil }, 0, 0, nil)
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts())
}

func TestConsumer_MalformedPayloadIsRejected(t *testing.T) {
	publisher := new(MockEventPublisher)
	c := NewConsumer(zap.NewNop(), publisher, 3, 0)

	rec := &settleRecorder{}
	outcome := c.Consume(context.Background(), []byte("not json"), rec.ack, rec.reject)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, int32(1), rec.rejects.Load())
	// до публикации дело не доходит
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestConsumer_PublishesOrderCreated(t *testing.T) {
	publisher := new(MockEventPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e domain.OrderCreated) bool {
		return e.OrderNumber == "A123" && e.ProductCode == "P9" && e.Quantity == 2 && e.Customer == nil
	})).Return(nil).Once()

	c := NewConsumer(zap.NewNop(), publisher, 3, 0)

	rec := &settleRecorder{}
	outcome := c.Consume(context.Background(), []byte(validPayload), rec.ack, rec.reject)

	assert.Equal(t, OutcomeAcknowledged, outcome)
	assert.Equal(t, int32(1), rec.acks.Load())
	publisher.AssertExpectations(t)
}

func TestConsumer_ChannelErrorOnAckIsNotRetried(t *testing.T) {
	calls := 0
	handle := func(ctx context.Context, payload []byte) error {
		calls++
		return nil
	}
	c := NewConsumerWithHandler(zap.NewNop(), handle, 3, 0, &MockSleeper{})

	rejects := 0
	outcome := c.Consume(context.Background(), []byte(validPayload),
		func() error { return &ChannelError{Op: "ack", Tag: 7, Err: errors.New("connection reset")} },
		func() error { rejects++; return nil },
	)

	assert.Equal(t, OutcomeAcknowledged, outcome)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, rejects)
}

func TestConsumer_CancelledContextStillSettles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seenErr error
	handle := func(ctx context.Context, payload []byte) error {
		seenErr = ctx.Err()
		return nil
	}
	c := NewConsumerWithHandler(zap.NewNop(), handle, 3, 0, &MockSleeper{})

	rec := &settleRecorder{}
	outcome := c.Consume(ctx, []byte(validPayload), rec.ack, rec.reject)

	assert.Equal(t, OutcomeAcknowledged, outcome)
	assert.NoError(t, seenErr)
	assert.Equal(t, int32(1), rec.acks.Load())
}

func TestConsumer_EndToEndWithBus(t *testing.T) {
	bus := eventbus.New(zap.NewNop())

	var received []domain.OrderCreated
	eventbus.Subscribe(bus, "recorder", func(ctx context.Context, e domain.OrderCreated) error {
		received = append(received, e)
		return nil
	})

	c := NewConsumer(zap.NewNop(), bus, 3, 0)
	rec := &settleRecorder{}

	payload := []byte(`{"orderNumber":"A123","productCode":"BOOK-001","quantity":2,` +
		`"customer":{"name":"Alice","email":"alice@example.com","phone":"123"}}`)
	outcome := c.Consume(context.Background(), payload, rec.ack, rec.reject)

	assert.Equal(t, OutcomeAcknowledged, outcome)
	assert.Equal(t, int32(1), rec.acks.Load())
	assert.Equal(t, int32(0), rec.rejects.Load())

	require.Len(t, received, 1)
	e := received[0]
	assert.Equal(t, "A123", e.OrderNumber)
	assert.Equal(t, "BOOK-001", e.ProductCode)
	assert.Equal(t, 2, e.Quantity)
	require.NotNil(t, e.Customer)
	require.NotNil(t, e.Customer.Name)
	require.NotNil(t, e.Customer.Email)
	require.NotNil(t, e.Customer.Phone)
	assert.Equal(t, "Alice", *e.Customer.Name)
	assert.Equal(t, "alice@example.com", *e.Customer.Email)
	assert.Equal(t, "123", *e.Customer.Phone)
}

func TestConsumer_EndToEndMalformedPayloadPublishesNothing(t *testing.T) {
	bus := eventbus.New(zap.NewNop())

	var received []domain.OrderCreated
	eventbus.Subscribe(bus, "recorder", func(ctx context.Context, e domain.OrderCreated) error {
		received = append(received, e)
		return nil
	})

	c := NewConsumer(zap.NewNop(), bus, 3, 0)
	rec := &settleRecorder{}

	outcome := c.Consume(context.Background(), []byte("not-json"), rec.ack, rec.reject)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Empty(t, received)
	assert.Equal(t, int32(0), rec.acks.Load())
	assert.Equal(t, int32(1), rec.rejects.Load())
}

func TestConsumer_EndToEndSubscriberFailureDeadLetters(t *testing.T) {
	bus := eventbus.New(zap.NewNop())

	calls := 0
	eventbus.Subscribe(bus, "broken", func(ctx context.Context, e domain.OrderCreated) error {
		calls++
		return errors.New("inventory down")
	})

	c := NewConsumer(zap.NewNop(), bus, 3, 0)
	rec := &settleRecorder{}
	outcome := c.Consume(context.Background(), []byte(validPayload), rec.ack, rec.reject)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int32(1), rec.rejects.Load())
}
