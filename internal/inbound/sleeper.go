package inbound

import (
	"context"
	"time"
)

// Sleeper определяет интерфейс для задержки между попытками (подменяется в тестах)
type Sleeper interface {
	// Sleep выполняет задержку на указанное время или до отмены контекста
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultSleeper реализует Sleeper через time.After
type DefaultSleeper struct{}

// Sleep выполняет задержку
func (s *DefaultSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
