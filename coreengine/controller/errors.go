package controller

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when no checkpoint exists for a session ID.
var ErrSessionNotFound = errors.New("controller: session not found")

// PreconditionError is returned when an operation is invalid for the
// session's current status, such as submitting to a passed session.
type PreconditionError struct {
	SessionID string
	Status    string
	Reason    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("session %s in status %q: %s", e.SessionID, e.Status, e.Reason)
}

// NewPreconditionError creates a new PreconditionError.
func NewPreconditionError(sessionID, status, reason string) *PreconditionError {
	return &PreconditionError{SessionID: sessionID, Status: status, Reason: reason}
}
