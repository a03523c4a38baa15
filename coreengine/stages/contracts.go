// Package stages implements the four workflow stages: lesson generation,
// challenge authoring, submission evaluation, and remediation.
//
// Each stage is a single-responsibility unit driven by the workflow machine.
// A stage reads from the session, performs one generator interaction, and
// writes its output back through the session's guarded setters. Stages never
// persist state or decide routing; both belong to the machine.
package stages

import (
	"context"

	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"go.opentelemetry.io/otel"
)

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// Stage is one unit of work in the workflow.
type Stage interface {
	// Name identifies the stage in logs, metrics, and error records.
	Name() string
	// Run executes the stage against the session, mutating it in place.
	Run(ctx context.Context, sess *session.Session) error
}

var tracer = otel.Tracer("challengecore/stages")

// Canonical stage names, shared with the workflow machine's transition table.
const (
	StageLesson    = "create_lesson"
	StageChallenge = "create_challenge"
	StageEvaluate  = "evaluate_code"
	StageRemediate = "remediation"
)

// nopLogger discards everything. Used when a stage is built without a logger.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) Bind(...any) Logger { return n }

func orNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
