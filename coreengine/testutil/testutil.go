// Package testutil provides shared test utilities and mocks for integration tests.
//
// All mocks in this package are designed for testing the coreengine components
// in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
)

// =============================================================================
// MOCK GENERATOR
// =============================================================================

// Prompt markers that identify which stage issued a generator call. Each
// stage's prompt opens with a distinct persona line, so substring matching
// on these is unambiguous.
const (
	LessonMarker      = "expert technical instructor"
	ChallengeMarker   = "pedagogical expert"
	EvaluationMarker  = "expert technical evaluator"
	RemediationMarker = "supportive coding tutor"
)

// MockGenerator implements structured.Generator for testing.
// Configure responses by prompt substring or use DefaultResponse.
type MockGenerator struct {
	// Responses maps prompt substrings to responses.
	// First matching substring wins.
	Responses map[string]string

	// DefaultResponse is returned when no substring matches.
	DefaultResponse string

	// Delay simulates generator latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// ErrorsBeforeSuccess fails the first N calls before returning
	// responses normally. Used to exercise retry paths.
	ErrorsBeforeSuccess int

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Prompts records every prompt for assertion.
	Prompts []string

	// GenerateFunc allows custom generation logic.
	// If set, this is called instead of using Responses.
	GenerateFunc func(context.Context, string) (string, error)

	mu sync.Mutex
}

// NewMockGenerator creates a MockGenerator with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Responses:       make(map[string]string),
		DefaultResponse: `{"passed": true, "score": 100, "feedback": "mock response"}`,
	}
}

// NewWorkflowGenerator creates a MockGenerator pre-wired with canned
// responses for all four stages, with evaluations passing.
func NewWorkflowGenerator() *MockGenerator {
	return NewMockGenerator().
		WithResponse(LessonMarker, LessonResponse()).
		WithResponse(ChallengeMarker, ChallengeResponse()).
		WithResponse(EvaluationMarker, PassEvaluationResponse()).
		WithResponse(RemediationMarker, RemediationResponse(1))
}

// Generate implements structured.Generator.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Prompts = append(m.Prompts, prompt)
	callNum := m.CallCount
	customFunc := m.GenerateFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, prompt)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}
	if callNum <= m.ErrorsBeforeSuccess {
		return "", fmt.Errorf("mock generator failure %d", callNum)
	}

	for marker, response := range m.Responses {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}

	return m.DefaultResponse, nil
}

// WithResponse adds a substring-based response.
func (m *MockGenerator) WithResponse(marker, response string) *MockGenerator {
	m.Responses[marker] = response
	return m
}

// WithError configures the mock to return an error on every call.
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockGenerator) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// PromptsMatching returns the recorded prompts containing the marker.
func (m *MockGenerator) PromptsMatching(marker string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for _, p := range m.Prompts {
		if strings.Contains(p, marker) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Reset clears call history.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Prompts = nil
}

// =============================================================================
// CANNED RESPONSES
// =============================================================================

// LessonResponse returns a markdown lesson body.
func LessonResponse() string {
	return "# Goroutines\n\n## Introduction\n\nConcurrency in Go starts with the goroutine.\n\n## Summary\n\nUse `go` to launch one."
}

// ChallengeResponse returns a valid challenge specification document.
func ChallengeResponse() string {
	return `{
  "challenge_format": "code",
  "challenge_prompt": "Write a function that fans work out to N goroutines and collects the results.",
  "starter_code": "func fanOut(jobs []int, n int) []int {\n\t// TODO\n}",
  "expected_approach": "Launch n workers reading from a shared channel, collect via a results channel.",
  "success_criteria": ["Uses goroutines", "No data races", "Collects all results"],
  "hints_bank": ["Think about channel direction", "A WaitGroup closes the results channel", "Buffer the jobs channel to avoid blocking the producer"]
}`
}

// PassEvaluationResponse returns a passing evaluation document.
func PassEvaluationResponse() string {
	return `{
  "passed": true,
  "score": 92,
  "errors": [],
  "feedback": "Clean worker pool with correct channel closure.",
  "what_worked": ["Correct use of WaitGroup"],
  "what_needs_work": []
}`
}

// FailEvaluationResponse returns a failing evaluation document.
func FailEvaluationResponse() string {
	return `{
  "passed": false,
  "score": 40,
  "errors": ["Results channel is never closed"],
  "feedback": "The collector blocks forever because no one closes the results channel.",
  "what_worked": ["Workers launch correctly"],
  "what_needs_work": ["Channel lifecycle"]
}`
}

// RemediationResponse returns a remediation document at the given hint level.
func RemediationResponse(level int) string {
	return fmt.Sprintf(`{
  "hint_level": %d,
  "targeted_hint": "Look at who is responsible for closing the results channel.",
  "encouragement": "You are close - the worker logic is right.",
  "key_concept_reminder": "Ranging over a channel ends only when the channel is closed."
}`, level)
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements stages.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, fields ...any) {
	m.log("debug", msg, fields...)
}

func (m *MockLogger) Info(msg string, fields ...any) {
	m.log("info", msg, fields...)
}

func (m *MockLogger) Warn(msg string, fields ...any) {
	m.log("warn", msg, fields...)
}

func (m *MockLogger) Error(msg string, fields ...any) {
	m.log("error", msg, fields...)
}

func (m *MockLogger) Bind(fields ...any) stages.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, fields ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parsed := make(map[string]any)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			parsed[key] = fields[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  parsed,
	})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.Logs {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// SESSION FIXTURES
// =============================================================================

// ChallengeData returns a representative roadmap descriptor.
func ChallengeData() map[string]any {
	return map[string]any{
		"title":       "Worker Pools",
		"objective":   "Fan work out to goroutines and collect results safely",
		"description": "Build a bounded worker pool over channels.",
	}
}

// NewSession creates a fresh session with fixture data.
func NewSession() *session.Session {
	return session.New("student-1", 1, 1, ChallengeData(), session.LevelIntermediate, "hybrid")
}

// NewSuspendedSession creates a session with generated content, parked at the
// submission suspend point.
func NewSuspendedSession() *session.Session {
	sess := NewSession()
	sess.SetLesson(LessonResponse())
	sess.SetChallenge(FixtureChallengeSpec())
	sess.Status = session.StatusAwaitingCode
	return sess
}

// FixtureChallengeSpec returns a populated challenge specification.
func FixtureChallengeSpec() *session.ChallengeSpec {
	return &session.ChallengeSpec{
		Format:           "code",
		Prompt:           "Write a function that fans work out to N goroutines and collects the results.",
		StarterCode:      "func fanOut(jobs []int, n int) []int {\n\t// TODO\n}",
		ExpectedApproach: "Launch n workers reading from a shared channel, collect via a results channel.",
		SuccessCriteria:  []string{"Uses goroutines", "No data races", "Collects all results"},
		HintsBank:        []string{"Think about channel direction", "A WaitGroup closes the results channel"},
	}
}
