// Package events provides the workflow event bus.
//
// Components depend on these protocols, not implementations. The bus carries
// fire-and-forget domain events with fan-out semantics: the workflow machine
// publishes, and observers (progress store, telemetry, future websocket
// broadcast) subscribe. Publishing never fails the workflow.
package events

import "context"

// Message is the protocol for all bus messages.
type Message interface {
	// Category returns the message category. Currently always "event".
	Category() string
}

// Handler is the protocol for message handlers.
type Handler interface {
	Handle(ctx context.Context, message Message) error
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, message Message) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, message Message) error {
	return f(ctx, message)
}

// Middleware can intercept messages before/after handling.
// Used for logging, telemetry, and failure protection.
type Middleware interface {
	// Before is called before a message is dispatched.
	// Returns the (possibly modified) message, or nil to abort dispatch.
	Before(ctx context.Context, message Message) (Message, error)

	// After is called once all subscribers have run.
	After(ctx context.Context, message Message, err error) error
}

// Bus is the protocol for the event bus.
type Bus interface {
	// Publish delivers an event to all subscribers, fan-out, fire-and-forget.
	Publish(ctx context.Context, event Message) error

	// Subscribe registers a handler for an event type.
	// Returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()

	// AddMiddleware adds middleware, executed in registration order.
	AddMiddleware(middleware Middleware)

	// HasSubscribers reports whether any handler listens for an event type.
	HasSubscribers(eventType string) bool

	// Clear removes all subscribers and middleware. Useful for testing.
	Clear()
}
