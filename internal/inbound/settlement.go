package inbound

import "sync"

// Settlement гарантирует, что на одну доставку вызывается не больше одного ack или reject.
// Протокол брокера запрещает двойное подтверждение, поэтому второй вызов не доходит до канала.
type Settlement struct {
	ack    func() error
	reject func() error

	mu      sync.Mutex
	settled bool
	outcome Outcome
}

// NewSettlement оборачивает примитивы канала для одной доставки
func NewSettlement(ack, reject func() error) *Settlement {
	return &Settlement{ack: ack, reject: reject}
}

// Ack подтверждает доставку; повторный вызов (или вызов после Reject) возвращает ErrAlreadySettled
func (s *Settlement) Ack() error {
	return s.settle(OutcomeAcknowledged, s.ack)
}

// Reject отклоняет доставку; повторный вызов (или вызов после Ack) возвращает ErrAlreadySettled
func (s *Settlement) Reject() error {
	return s.settle(OutcomeRejected, s.reject)
}

// Outcome возвращает итог доставки и был ли он уже зафиксирован
func (s *Settlement) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.settled
}

func (s *Settlement) settle(outcome Outcome, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return ErrAlreadySettled
	}
	s.settled = true
	s.outcome = outcome

	if fn == nil {
		return nil
	}
	return fn()
}
