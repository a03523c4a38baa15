// Package session provides the Session - the durable state of one exercise
// workflow instance.
//
// Status tracking is a closed string enum: transitions are one-directional
// except the remediation loop back to the suspend point. The full state
// round-trips through a map[string]any state dict for checkpointing.
package session

// Status represents the workflow position of a session - exactly one at a time.
type Status string

const (
	// StatusCreatingLesson indicates the lesson authoring stage is pending or running.
	StatusCreatingLesson Status = "creating_lesson"
	// StatusLessonReady indicates the lesson exists and challenge authoring is next.
	StatusLessonReady Status = "lesson_ready"
	// StatusAwaitingCode is the designated suspend point - waiting for a submission.
	StatusAwaitingCode Status = "awaiting_code"
	// StatusEvaluating indicates a submission is being evaluated.
	StatusEvaluating Status = "evaluating"
	// StatusPassed indicates the terminal success state.
	StatusPassed Status = "passed"
	// StatusNeedsRemediation indicates a failed attempt awaiting hint generation.
	StatusNeedsRemediation Status = "needs_remediation"
	// StatusError indicates a stage failed unrecoverably; the error slot is set.
	StatusError Status = "error"
)

// IsTerminal returns true if no further workflow advance is possible.
func (s Status) IsTerminal() bool {
	return s == StatusPassed
}

// Valid returns true if the status is a member of the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusCreatingLesson, StatusLessonReady, StatusAwaitingCode,
		StatusEvaluating, StatusPassed, StatusNeedsRemediation, StatusError:
		return true
	}
	return false
}

// ExperienceLevel represents the learner level tag carried on every session.
type ExperienceLevel string

const (
	// LevelBeginner is the most lenient evaluation tier.
	LevelBeginner ExperienceLevel = "Beginner"
	// LevelIntermediate is the default evaluation tier.
	LevelIntermediate ExperienceLevel = "Intermediate"
	// LevelAdvanced expects edge cases and production concerns.
	LevelAdvanced ExperienceLevel = "Advanced"
)

// Valid returns true if the level is a member of the closed set.
func (l ExperienceLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}
