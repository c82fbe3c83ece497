package eventbus

import (
	"fmt"
	"strings"
)

// HandlerError - ошибка конкретного подписчика
type HandlerError struct {
	Subscriber string
	EventType  string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscriber %s failed on %s: %v", e.Subscriber, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PublishError собирает ошибки всех упавших подписчиков одного Publish
type PublishError struct {
	EventType string
	Errors    []error
}

func (e *PublishError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("publish %s: %d subscriber(s) failed: %s", e.EventType, len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap позволяет errors.Is/errors.As находить ошибки подписчиков
func (e *PublishError) Unwrap() []error {
	return e.Errors
}
