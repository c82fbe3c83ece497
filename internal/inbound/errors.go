package inbound

import (
	"errors"
	"fmt"
)

// ErrAlreadySettled возвращается при повторной попытке ack/reject одной и той же доставки
var ErrAlreadySettled = errors.New("delivery already settled")

// DecodeError - payload не является корректным JSON или не содержит обязательного поля.
// Ретраится в пределах maxAttempts, затем сообщение уходит в dead-letter.
type DecodeError struct {
	Field   string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "decode new order: " + e.Message
	}
	return fmt.Sprintf("decode new order: %s: %s", e.Field, e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ChannelError - сам ack/reject не прошёл на уровне транспорта.
// Только логируется: восстановить решение уже нельзя, брокер передоставит или потеряет сообщение.
type ChannelError struct {
	Op  string // "ack" | "reject"
	Tag uint64
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s (delivery_tag=%d): %v", e.Op, e.Tag, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
