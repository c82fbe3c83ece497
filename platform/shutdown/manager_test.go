package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestManager_RunsFunctionsInReverseOrder(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	var order []string
	m.Add("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Add("second", func(ctx context.Context) error {
		order = append(order, "second")
		return errors.New("boom") // ошибка не должна останавливать остальные функции
	})
	m.Add("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	m.Trigger()
	m.Trigger() // повторный вызов безопасен

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Trigger")
	}

	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_FunctionReceivesDeadline(t *testing.T) {
	m := New(50*time.Millisecond, zap.NewNop())

	var hasDeadline bool
	m.Add("deadline", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	m.Shutdown()
	assert.True(t, hasDeadline)
}

type closerStub struct{ closed bool }

func (c *closerStub) Close() error {
	c.closed = true
	return nil
}

func TestClose(t *testing.T) {
	c := &closerStub{}
	assert.NoError(t, Close(c)(context.Background()))
	assert.True(t, c.closed)
}
