package domain

// ValidationError - идентификатор от вызывающей стороны отсутствует или некорректен.
// Возвращается сразу, никогда не ретраится.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
