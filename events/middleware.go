// Package events - middleware implementations.
//
// Middleware intercepts messages before/after dispatch for cross-cutting
// concerns.
//
// Available Middleware:
//   - LoggingMiddleware: Structured logging of all event traffic
//   - CircuitBreakerMiddleware: Failure protection per event type
package events

import (
	"context"
	"log"
	"sync"
	"time"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all event traffic.
type LoggingMiddleware struct{}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

// Before logs event receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	log.Printf("events: %s %s", message.Category(), GetMessageType(message))
	return message, nil
}

// After logs event completion.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, err error) error {
	if err != nil {
		log.Printf("events: %s failed: %v", GetMessageType(message), err)
	}
	return nil
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

// CircuitBreakerState represents the state for one event type.
type CircuitBreakerState struct {
	Failures    int
	LastFailure time.Time
	State       string // "closed", "open", "half-open"
}

// CircuitBreakerMiddleware implements the circuit breaker pattern.
//
// Protects against cascading subscriber failures by:
//   - Opening the circuit after N failures
//   - Blocking events while open
//   - Testing with a single event in half-open state
//   - Closing the circuit after success
type CircuitBreakerMiddleware struct {
	failureThreshold int
	resetTimeout     time.Duration
	excludedTypes    map[string]struct{}
	states           map[string]*CircuitBreakerState
	mu               sync.Mutex
}

// NewCircuitBreakerMiddleware creates a new CircuitBreakerMiddleware.
func NewCircuitBreakerMiddleware(failureThreshold int, resetTimeout time.Duration, excludedTypes []string) *CircuitBreakerMiddleware {
	excluded := make(map[string]struct{})
	for _, t := range excludedTypes {
		excluded[t] = struct{}{}
	}

	return &CircuitBreakerMiddleware{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		excludedTypes:    excluded,
		states:           make(map[string]*CircuitBreakerState),
	}
}

func (m *CircuitBreakerMiddleware) getState(msgType string) *CircuitBreakerState {
	if _, exists := m.states[msgType]; !exists {
		m.states[msgType] = &CircuitBreakerState{State: "closed"}
	}
	return m.states[msgType]
}

// Before checks circuit breaker state.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	msgType := GetMessageType(message)

	if _, excluded := m.excludedTypes[msgType]; excluded {
		return message, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)

	if state.State == "open" {
		if time.Since(state.LastFailure) >= m.resetTimeout {
			state.State = "half-open"
			log.Printf("Circuit half-open for %s", msgType)
		} else {
			log.Printf("Circuit open for %s, dropping event", msgType)
			return nil, nil // Drop the event
		}
	}

	return message, nil
}

// After updates circuit breaker state based on dispatch result.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, message Message, err error) error {
	msgType := GetMessageType(message)

	if _, excluded := m.excludedTypes[msgType]; excluded {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)

	if err != nil {
		state.Failures++
		state.LastFailure = time.Now()

		if state.State == "half-open" {
			state.State = "open"
			log.Printf("Circuit reopened for %s", msgType)
		} else if m.failureThreshold > 0 && state.Failures >= m.failureThreshold {
			// threshold=0 means never open
			state.State = "open"
			log.Printf("Circuit opened for %s after %d failures", msgType, state.Failures)
		}
	} else if state.State == "half-open" {
		state.State = "closed"
		state.Failures = 0
		log.Printf("Circuit closed for %s", msgType)
	}

	return nil
}

// GetStates returns current circuit states.
func (m *CircuitBreakerMiddleware) GetStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]string)
	for k, v := range m.states {
		result[k] = v.State
	}
	return result
}

// Reset resets circuit breaker state.
func (m *CircuitBreakerMiddleware) Reset(msgType *string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msgType != nil {
		delete(m.states, *msgType)
	} else {
		m.states = make(map[string]*CircuitBreakerState)
	}
}

// Ensure all middleware types implement Middleware interface.
var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
