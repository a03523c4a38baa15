package structured

import (
	"fmt"
)

// TransientCallError indicates the external generator was unreachable or
// rate-limited. The calling stage's state is unchanged; re-invoking the same
// entry point is safe.
type TransientCallError struct {
	Op    string
	Cause error
}

func (e *TransientCallError) Error() string {
	return fmt.Sprintf("generator call failed during %s: %v", e.Op, e.Cause)
}

func (e *TransientCallError) Unwrap() error {
	return e.Cause
}

// NewTransientCallError creates a new TransientCallError.
func NewTransientCallError(op string, cause error) *TransientCallError {
	return &TransientCallError{Op: op, Cause: cause}
}

// MalformedOutputError indicates both the initial decode and the single
// normalized retry failed. It carries the raw generator text and the original
// decode diagnostic; no partial document is ever surfaced alongside it.
type MalformedOutputError struct {
	Raw   string
	Cause error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed generator output: %v", e.Cause)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Cause
}

// NewMalformedOutputError creates a new MalformedOutputError.
func NewMalformedOutputError(raw string, cause error) *MalformedOutputError {
	return &MalformedOutputError{Raw: raw, Cause: cause}
}
