package interp

import (
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/value"
)

// signal is how `return` and `break` escape the normal execute() return
// path without being conflated with a real OrchidError (spec.md §9,
// "Sentinel exceptions for return/break"). It is carried as a distinguished
// error so that existing Go control flow (defer/return err) threads it
// through try/finally and loop bodies; callers that need to treat it as
// control flow rather than failure type-assert for *signal explicitly.
type signal struct {
	kind  signalKind
	value value.Value
}

type signalKind int

const (
	sigReturn signalKind = iota
	sigBreak
)

func (s *signal) Error() string {
	if s.kind == sigReturn {
		return "return outside function"
	}
	return "break outside loop"
}

func isReturn(err error) (value.Value, bool) {
	if s, ok := err.(*signal); ok && s.kind == sigReturn {
		return s.value, true
	}
	return value.Null, false
}

func isBreak(err error) bool {
	s, ok := err.(*signal)
	return ok && s.kind == sigBreak
}

// isControlSignal reports whether err is a return/break signal rather than
// a genuine OrchidError, matching §7's except-matching rule that an unnamed
// except "catches anything except return propagation" (break is likewise
// never user-catchable; it is consumed by the innermost loop).
func isControlSignal(err error) bool {
	_, ok := err.(*signal)
	return ok
}

func asOrchidError(err error) (*errs.OrchidError, bool) {
	oe, ok := err.(*errs.OrchidError)
	return oe, ok
}
