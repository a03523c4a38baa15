// Package checkpoint persists workflow session state between stage
// executions.
//
// State is saved after every stage (at-least-once per transition), keyed by
// session identifier, so a crash mid-pipeline resumes from the last completed
// stage rather than restarting the exercise. Distinct session keys are
// isolated; no cross-session transactions exist.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no checkpoint exists for a session.
var ErrNotFound = errors.New("checkpoint: session not found")

// Store is the checkpoint persistence contract.
type Store interface {
	// Save persists the full state dict for a session, replacing any
	// previous checkpoint.
	Save(ctx context.Context, sessionID string, state map[string]any) error

	// Load returns the last persisted state dict, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (map[string]any, error)

	// Delete removes a session's checkpoint. Deleting a missing session
	// is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Close releases underlying resources.
	Close() error
}
