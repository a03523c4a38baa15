package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishFailure(t *testing.T, bus *InMemoryBus) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), &StageFailed{Stage: "evaluate_code"}))
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(3, time.Minute, nil)
	bus.AddMiddleware(breaker)

	var delivered atomic.Int32
	bus.Subscribe("StageFailed", func(ctx context.Context, msg Message) error {
		delivered.Add(1)
		return fmt.Errorf("subscriber down")
	})

	for i := 0; i < 3; i++ {
		publishFailure(t, bus)
	}
	assert.Equal(t, "open", breaker.GetStates()["StageFailed"])

	// Open circuit drops events before they reach subscribers.
	publishFailure(t, bus)
	assert.Equal(t, int32(3), delivered.Load())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(1, 10*time.Millisecond, nil)
	bus.AddMiddleware(breaker)

	failing := true
	bus.Subscribe("StageFailed", func(ctx context.Context, msg Message) error {
		if failing {
			return fmt.Errorf("subscriber down")
		}
		return nil
	})

	publishFailure(t, bus)
	require.Equal(t, "open", breaker.GetStates()["StageFailed"])

	// After the reset timeout a probe event is allowed through; success
	// closes the circuit again.
	failing = false
	time.Sleep(20 * time.Millisecond)
	publishFailure(t, bus)

	assert.Equal(t, "closed", breaker.GetStates()["StageFailed"])
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(1, 10*time.Millisecond, nil)
	bus.AddMiddleware(breaker)

	bus.Subscribe("StageFailed", func(ctx context.Context, msg Message) error {
		return fmt.Errorf("still down")
	})

	publishFailure(t, bus)
	require.Equal(t, "open", breaker.GetStates()["StageFailed"])

	time.Sleep(20 * time.Millisecond)
	publishFailure(t, bus)

	assert.Equal(t, "open", breaker.GetStates()["StageFailed"])
}

func TestCircuitBreakerExcludedTypes(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(1, time.Minute, []string{"SessionCompleted"})
	bus.AddMiddleware(breaker)

	var delivered atomic.Int32
	bus.Subscribe("SessionCompleted", func(ctx context.Context, msg Message) error {
		delivered.Add(1)
		return fmt.Errorf("always fails")
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), &SessionCompleted{SessionID: "s"}))
	}

	assert.Equal(t, int32(5), delivered.Load(), "excluded types bypass the breaker entirely")
	assert.Empty(t, breaker.GetStates()[("SessionCompleted")])
}

func TestCircuitBreakerZeroThresholdNeverOpens(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(0, time.Minute, nil)
	bus.AddMiddleware(breaker)

	bus.Subscribe("StageFailed", func(ctx context.Context, msg Message) error {
		return fmt.Errorf("fails")
	})

	for i := 0; i < 10; i++ {
		publishFailure(t, bus)
	}

	assert.Equal(t, "closed", breaker.GetStates()["StageFailed"])
}

func TestCircuitBreakerIsolatesEventTypes(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(1, time.Minute, nil)
	bus.AddMiddleware(breaker)

	bus.Subscribe("StageFailed", func(ctx context.Context, msg Message) error {
		return fmt.Errorf("fails")
	})
	var hints atomic.Int32
	bus.Subscribe("HintIssued", func(ctx context.Context, msg Message) error {
		hints.Add(1)
		return nil
	})

	publishFailure(t, bus)
	require.Equal(t, "open", breaker.GetStates()["StageFailed"])

	require.NoError(t, bus.Publish(context.Background(), &HintIssued{SessionID: "s"}))

	assert.Equal(t, int32(1), hints.Load(), "an open circuit for one type must not block another")
}

func TestCircuitBreakerReset(t *testing.T) {
	bus := NewInMemoryBus()
	breaker := NewCircuitBreakerMiddleware(1, time.Hour, nil)
	bus.AddMiddleware(breaker)

	bus.Subscribe("StageFailed", func(ctx context.Context, msg Message) error {
		return fmt.Errorf("fails")
	})

	publishFailure(t, bus)
	require.Equal(t, "open", breaker.GetStates()["StageFailed"])

	eventType := "StageFailed"
	breaker.Reset(&eventType)
	assert.NotContains(t, breaker.GetStates(), "StageFailed")

	// The next event flows again instead of being dropped.
	publishFailure(t, bus)
	assert.Equal(t, "open", breaker.GetStates()["StageFailed"], "a fresh failure after reset trips the breaker anew")
}

func TestLoggingMiddlewarePassesMessageThrough(t *testing.T) {
	mw := NewLoggingMiddleware()
	msg := &SessionStarted{SessionID: "s"}

	out, err := mw.Before(context.Background(), msg)

	require.NoError(t, err)
	assert.Same(t, msg, out)
	assert.NoError(t, mw.After(context.Background(), msg, nil))
	assert.NoError(t, mw.After(context.Background(), msg, fmt.Errorf("handler error")))
}
