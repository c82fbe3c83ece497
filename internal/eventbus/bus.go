// Package eventbus - синхронная in-process шина событий.
//
// Подписчики регистрируются явно при сборке приложения (Subscribe), до начала потребления.
// Publish вызывает обработчики точного типа события по порядку регистрации в горутине
// вызывающего. Ошибка одного обработчика логируется и не мешает остальным; все ошибки
// возвращаются вызывающему одной *PublishError.
//
// Паника обработчика не перехватывается: это ошибка программы, а не отказ подписчика.
// Она прерывает Publish (оставшиеся обработчики не вызываются) и уходит вызывающему.
package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

type subscription struct {
	name   string
	handle func(ctx context.Context, event any) error
}

// Bus - экземпляр шины. Передаётся явно каждому компоненту, которому нужно публиковать или подписываться.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[reflect.Type][]subscription
}

// New создаёт пустую шину
func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[reflect.Type][]subscription),
	}
}

// Subscribe регистрирует обработчик событий типа E.
// name используется в логах и в HandlerError.
func Subscribe[E any](b *Bus, name string, handler func(ctx context.Context, event E) error) {
	typ := reflect.TypeFor[E]()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[typ] = append(b.subs[typ], subscription{
		name: name,
		handle: func(ctx context.Context, event any) error {
			return handler(ctx, event.(E))
		},
	})

	b.logger.Debug("event subscriber registered",
		zap.String("event_type", typ.String()),
		zap.String("subscriber", name),
		zap.Int("position", len(b.subs[typ])),
	)
}

// Publish синхронно доставляет событие всем подписчикам его точного типа.
// Возвращает nil, если все обработчики отработали (или подписчиков нет).
func (b *Bus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return fmt.Errorf("eventbus: nil event")
	}
	typ := reflect.TypeOf(event)

	b.mu.RLock()
	subs := b.subs[typ]
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers for event", zap.String("event_type", typ.String()))
		return nil
	}

	var failed []error
	for _, s := range subs {
		if err := s.handle(ctx, event); err != nil {
			b.logger.Error("event subscriber failed",
				zap.Error(err),
				zap.String("event_type", typ.String()),
				zap.String("subscriber", s.name),
			)
			failed = append(failed, &HandlerError{Subscriber: s.name, EventType: typ.String(), Err: err})
		}
	}

	if len(failed) > 0 {
		return &PublishError{EventType: typ.String(), Errors: failed}
	}
	return nil
}

// SubscriberCount возвращает количество обработчиков для типа события E
func SubscriberCount[E any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[E]()])
}
