// Package events - message definitions.
//
// All messages are EVENTS: fire-and-forget, fan-out to subscribers. They
// narrate the lifecycle of a challenge session so observers can react without
// coupling to the workflow machine.
package events

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
)

// =============================================================================
// SESSION LIFECYCLE EVENTS
// =============================================================================

// SessionStarted is emitted when a new challenge session begins.
type SessionStarted struct {
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	ModuleNumber    int    `json:"module_number"`
	ChallengeNumber int    `json:"challenge_number"`
}

// Category implements the Message interface.
func (m *SessionStarted) Category() string { return string(MessageCategoryEvent) }

// SessionSuspended is emitted when a session reaches the suspend point and
// waits for a learner submission.
type SessionSuspended struct {
	SessionID    string `json:"session_id"`
	AttemptCount int    `json:"attempt_count"`
	HintLevel    int    `json:"hint_level"` // 0 when no remediation has occurred
}

// Category implements the Message interface.
func (m *SessionSuspended) Category() string { return string(MessageCategoryEvent) }

// SessionCompleted is emitted when a session reaches a terminal or error
// status.
type SessionCompleted struct {
	SessionID    string  `json:"session_id"`
	Status       string  `json:"status"` // "passed" or "error"
	AttemptCount int     `json:"attempt_count"`
	Error        *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *SessionCompleted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// STAGE LIFECYCLE EVENTS
// =============================================================================

// StageCompleted is emitted after each successful stage execution.
type StageCompleted struct {
	SessionID  string `json:"session_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"` // session status after the stage
	DurationMS int    `json:"duration_ms"`
}

// Category implements the Message interface.
func (m *StageCompleted) Category() string { return string(MessageCategoryEvent) }

// StageFailed is emitted when a stage execution fails and the session moves
// to the error status.
type StageFailed struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// Category implements the Message interface.
func (m *StageFailed) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// SUBMISSION EVENTS
// =============================================================================

// AttemptEvaluated is emitted once per recorded evaluation.
type AttemptEvaluated struct {
	SessionID string `json:"session_id"`
	Attempt   int    `json:"attempt"`
	Passed    bool   `json:"passed"`
	Score     int    `json:"score"`
}

// Category implements the Message interface.
func (m *AttemptEvaluated) Category() string { return string(MessageCategoryEvent) }

// HintIssued is emitted when a remediation hint is produced for a failed
// attempt.
type HintIssued struct {
	SessionID string `json:"session_id"`
	Attempt   int    `json:"attempt"`
	HintLevel int    `json:"hint_level"`
}

// Category implements the Message interface.
func (m *HintIssued) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// TypedMessage is an optional interface for messages that provide their own
// type name.
type TypedMessage interface {
	Message
	MessageType() string
}

// GetMessageType returns the type name of a message for routing.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	switch msg.(type) {
	case *SessionStarted:
		return "SessionStarted"
	case *SessionSuspended:
		return "SessionSuspended"
	case *SessionCompleted:
		return "SessionCompleted"
	case *StageCompleted:
		return "StageCompleted"
	case *StageFailed:
		return "StageFailed"
	case *AttemptEvaluated:
		return "AttemptEvaluated"
	case *HintIssued:
		return "HintIssued"
	default:
		return "Unknown"
	}
}
