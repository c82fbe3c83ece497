package kafka

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/bookstore-orders/internal/inbound"
	"github.com/shestoi/bookstore-orders/internal/repository"
)

// MockReader реализует messageReader для тестов
type MockReader struct {
	mock.Mock
}

func (m *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *MockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockReader) Close() error {
	return m.Called().Error(0)
}

// MockWriter реализует messageWriter для тестов
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func testMessage() kafka.Message {
	return kafka.Message{
		Topic:     "new-orders",
		Partition: 1,
		Offset:    17,
		Key:       []byte("A123"),
		Value:     []byte("not json"),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("00-abc")}},
	}
}

func TestChannel_ReceiveAndAck(t *testing.T) {
	ctx := context.Background()
	reader := new(MockReader)
	msg := testMessage()
	reader.On("FetchMessage", ctx).Return(msg, nil).Once()
	reader.On("CommitMessages", ctx, []kafka.Message{msg}).Return(nil).Once()

	ch := newChannel(zap.NewNop(), reader, nil)

	d, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.Value, d.Body)
	assert.Equal(t, uint64(17), d.Tag)
	assert.Equal(t, "new-orders", d.Source)
	assert.Equal(t, "00-abc", d.Headers["traceparent"])

	require.NoError(t, ch.Ack(ctx, d))
	reader.AssertExpectations(t)
}

func TestChannel_RejectPublishesToDLQThenCommits(t *testing.T) {
	ctx := context.Background()
	reader := new(MockReader)
	writer := new(MockWriter)
	msg := testMessage()

	var published kafka.Message
	writer.On("WriteMessages", ctx, mock.Anything).Run(func(args mock.Arguments) {
		published = args.Get(1).([]kafka.Message)[0]
	}).Return(nil).Once()
	reader.On("CommitMessages", ctx, []kafka.Message{msg}).Return(nil).Once()

	dlq := &DLQPublisher{logger: zap.NewNop(), writer: writer, topic: "new-orders.dlq"}
	ch := newChannel(zap.NewNop(), reader, dlq)

	err := ch.Reject(ctx, deliveryOf(msg), false)
	require.NoError(t, err)

	var envelope DLQMessage
	require.NoError(t, json.Unmarshal(published.Value, &envelope))
	assert.Equal(t, "new-orders", envelope.OriginalTopic)
	assert.Equal(t, int64(17), envelope.OriginalOffset)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("not json")), envelope.OriginalValueB64)
	assert.Equal(t, rejectReason, envelope.Reason)

	reader.AssertExpectations(t)
	writer.AssertExpectations(t)
}

func TestChannel_RejectDoesNotCommitWhenDLQFails(t *testing.T) {
	ctx := context.Background()
	reader := new(MockReader)
	writer := new(MockWriter)
	writer.On("WriteMessages", ctx, mock.Anything).Return(errors.New("dlq down")).Once()

	dlq := &DLQPublisher{logger: zap.NewNop(), writer: writer, topic: "new-orders.dlq"}
	ch := newChannel(zap.NewNop(), reader, dlq)

	err := ch.Reject(ctx, deliveryOf(testMessage()), false)
	require.Error(t, err)
	reader.AssertNotCalled(t, "CommitMessages", mock.Anything, mock.Anything)
}

func TestChannel_RejectWithRequeueLeavesOffset(t *testing.T) {
	reader := new(MockReader)
	ch := newChannel(zap.NewNop(), reader, nil)

	require.NoError(t, ch.Reject(context.Background(), deliveryOf(testMessage()), true))
	reader.AssertNotCalled(t, "CommitMessages", mock.Anything, mock.Anything)
}

func TestOutboxPublisher_UsesEventTopicAndKey(t *testing.T) {
	ctx := context.Background()
	writer := new(MockWriter)
	writer.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 &&
			msgs[0].Topic == "domain.events" &&
			string(msgs[0].Key) == "order-1" &&
			string(msgs[0].Value) == `{"orderId":"order-1"}`
	})).Return(nil).Once()

	p := &OutboxPublisher{logger: zap.NewNop(), writer: writer}
	err := p.Publish(ctx, repository.OutboxEvent{
		EventID:     "e1",
		AggregateID: "order-1",
		EventType:   "OrderCompleted",
		Topic:       "domain.events",
		RoutingKey:  "order.completed",
		Payload:     []byte(`{"orderId":"order-1"}`),
	})
	require.NoError(t, err)
	writer.AssertExpectations(t)
}

func deliveryOf(m kafka.Message) inbound.Delivery {
	return inbound.Delivery{Body: m.Value, Tag: uint64(m.Offset), Source: m.Topic, Raw: m}
}
