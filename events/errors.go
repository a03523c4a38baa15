package events

import "fmt"

// SubscriberError records which subscriber failed for which event type.
// Publish collects the first one for middleware but never returns it to the
// publisher.
type SubscriberError struct {
	EventType string
	Index     int
	Cause     error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %d failed for %s: %v", e.Index, e.EventType, e.Cause)
}

func (e *SubscriberError) Unwrap() error {
	return e.Cause
}

// NewSubscriberError creates a new SubscriberError.
func NewSubscriberError(eventType string, index int, cause error) *SubscriberError {
	return &SubscriberError{EventType: eventType, Index: index, Cause: cause}
}
