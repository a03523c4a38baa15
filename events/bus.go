package events

import (
	"context"
	"log"
	"sync"
)

// InMemoryBus is an in-memory implementation of Bus.
//
// Thread-safe event bus for single-process deployments.
//
// Features:
//   - Event fan-out to multiple subscribers
//   - Middleware chain for cross-cutting concerns
//   - Subscriber introspection
//
// Usage:
//
//	bus := NewInMemoryBus()
//	bus.Subscribe("AttemptEvaluated", progressHandler)
//	bus.Publish(ctx, &AttemptEvaluated{...})
type InMemoryBus struct {
	subscribers map[string][]subscription
	middleware  []Middleware
	nextID      int
	mu          sync.RWMutex
}

type subscription struct {
	id      int
	handler HandlerFunc
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string][]subscription),
		middleware:  make([]Middleware, 0),
	}
}

// Publish publishes an event to all subscribers.
// Events are processed concurrently by all subscribers.
// Subscriber errors are logged but don't stop other subscribers and never
// propagate to the publisher.
func (b *InMemoryBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		log.Printf("Event %s aborted by middleware", eventType)
		return nil
	}

	b.mu.RLock()
	subs := b.subscribers[eventType]
	subscribersCopy := make([]HandlerFunc, len(subs))
	for i, s := range subs {
		subscribersCopy[i] = s.handler
	}
	b.mu.RUnlock()

	if len(subscribersCopy) == 0 {
		_ = b.runMiddlewareAfter(ctx, event, nil)
		return nil
	}

	// Fan-out to all subscribers concurrently
	var wg sync.WaitGroup
	errs := make([]error, len(subscribersCopy))

	for i, handler := range subscribersCopy {
		wg.Add(1)
		go func(idx int, h HandlerFunc) {
			defer wg.Done()
			if err := h(ctx, processed); err != nil {
				errs[idx] = NewSubscriberError(eventType, idx, err)
				log.Printf("Subscriber %d failed for %s: %v", idx, eventType, err)
			}
		}(i, handler)
	}

	wg.Wait()

	// First error only, for middleware visibility
	var firstError error
	for _, e := range errs {
		if e != nil {
			firstError = e
			break
		}
	}

	_ = b.runMiddlewareAfter(ctx, event, firstError)
	return nil
}

// Subscribe subscribes to an event type.
// Returns an unsubscribe function for cleanup.
func (b *InMemoryBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// AddMiddleware adds middleware to the bus.
// Middleware is executed in registration order.
func (b *InMemoryBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// HasSubscribers checks if any handler listens for an event type.
func (b *InMemoryBus) HasSubscribers(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType]) > 0
}

// Clear clears all subscribers and middleware.
// Useful for testing.
func (b *InMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]subscription)
	b.middleware = make([]Middleware, 0)
}

func (b *InMemoryBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	b.mu.RLock()
	middlewareCopy := make([]Middleware, len(b.middleware))
	copy(middlewareCopy, b.middleware)
	b.mu.RUnlock()

	current := message
	for _, mw := range middlewareCopy {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

// runMiddlewareAfter runs the middleware after chain in reverse order.
func (b *InMemoryBus) runMiddlewareAfter(ctx context.Context, message Message, err error) error {
	b.mu.RLock()
	middlewareCopy := make([]Middleware, len(b.middleware))
	copy(middlewareCopy, b.middleware)
	b.mu.RUnlock()

	for i := len(middlewareCopy) - 1; i >= 0; i-- {
		if afterErr := middlewareCopy[i].After(ctx, message, err); afterErr != nil {
			err = afterErr
		}
	}
	return err
}

// Ensure InMemoryBus implements Bus interface.
var _ Bus = (*InMemoryBus)(nil)
