package session

import (
	"fmt"
	"time"
)

// ChallengeSpec is the challenge specification produced by the challenge
// authoring stage. Once set on a session it is never overwritten.
type ChallengeSpec struct {
	Format           string   `json:"challenge_format"` // "code" or "conceptual"
	Prompt           string   `json:"challenge_prompt"`
	StarterCode      string   `json:"starter_code,omitempty"`
	ExpectedApproach string   `json:"expected_approach"`
	SuccessCriteria  []string `json:"success_criteria"`
	HintsBank        []string `json:"hints_bank"`
}

// Evaluation is the structured verdict produced by the evaluation stage.
type Evaluation struct {
	Passed        bool     `json:"passed"`
	Score         int      `json:"score"`
	Errors        []string `json:"errors"`
	Feedback      string   `json:"feedback"`
	WhatWorked    []string `json:"what_worked"`
	WhatNeedsWork []string `json:"what_needs_work"`
}

// Remediation is the structured hint payload produced after a failed attempt.
type Remediation struct {
	HintLevel          int    `json:"hint_level"`
	TargetedHint       string `json:"targeted_hint"`
	Encouragement      string `json:"encouragement"`
	KeyConceptReminder string `json:"key_concept_reminder"`
}

// SubmissionRecord is one append-only entry in the submission history.
type SubmissionRecord struct {
	Attempt    int        `json:"attempt"`
	Submission string     `json:"submission"`
	Evaluation Evaluation `json:"evaluation"`
	Timestamp  time.Time  `json:"timestamp"`
}

// StageError records the failing stage and message when status is "error".
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Session is the unit of persistence - one per (user, module, challenge).
//
// Mutated exclusively by workflow stage executions; the API layer never
// writes fields directly except to inject a submission at resume time.
type Session struct {
	// Identification
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	ModuleNumber    int    `json:"module_number"`
	ChallengeNumber int    `json:"challenge_number"`

	// Exercise descriptor (opaque payload from the roadmap collaborator)
	ChallengeData    map[string]any  `json:"challenge_data"`
	ExperienceLevel  ExperienceLevel `json:"experience_level"`
	LearningGoalType string          `json:"learning_goal_type"`

	// Generated content - immutable once set
	LessonMarkdown string         `json:"lesson_markdown"`
	Challenge      *ChallengeSpec `json:"coding_challenge,omitempty"`

	// Submission cycle
	Submission  string       `json:"user_code"`
	Evaluation  *Evaluation  `json:"evaluation,omitempty"`
	Remediation *Remediation `json:"remediation,omitempty"`

	// Attempt tracking
	AttemptCount int                `json:"attempt_count"`
	MaxAttempts  int                `json:"max_attempts"` // carried from the source schema; never enforced
	History      []SubmissionRecord `json:"submission_history"`

	// Workflow position
	Status Status      `json:"status"`
	Err    *StageError `json:"error,omitempty"`

	// Timing
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Metadata
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ID constructs the deterministic session identifier for a (user, module,
// challenge) triple, so re-requesting the same exercise addresses the same
// session.
func ID(userID string, moduleNumber, challengeNumber int) string {
	return fmt.Sprintf("user_%s_m%d_c%d", userID, moduleNumber, challengeNumber)
}

// New creates a fresh session at the creating_lesson stage.
func New(userID string, moduleNumber, challengeNumber int, challengeData map[string]any, level ExperienceLevel, goalType string) *Session {
	if goalType == "" {
		goalType = "hybrid"
	}
	return &Session{
		SessionID:        ID(userID, moduleNumber, challengeNumber),
		UserID:           userID,
		ModuleNumber:     moduleNumber,
		ChallengeNumber:  challengeNumber,
		ChallengeData:    challengeData,
		ExperienceLevel:  level,
		LearningGoalType: goalType,
		AttemptCount:     0,
		MaxAttempts:      3,
		History:          []SubmissionRecord{},
		Status:           StatusCreatingLesson,
		StartedAt:        time.Now().UTC(),
		Metadata:         make(map[string]any),
	}
}

// =============================================================================
// Content Setters - Immutability Guards
// =============================================================================

// SetLesson stores the lesson content. The first write wins; later writes
// are ignored so re-driving the machine never changes the lesson.
func (s *Session) SetLesson(markdown string) {
	if s.LessonMarkdown != "" {
		return
	}
	s.LessonMarkdown = markdown
}

// SetChallenge stores the challenge specification with the same
// first-write-wins semantics as SetLesson.
func (s *Session) SetChallenge(spec *ChallengeSpec) {
	if s.Challenge != nil {
		return
	}
	s.Challenge = spec
}

// HasContent returns true once both lesson and challenge spec exist.
func (s *Session) HasContent() bool {
	return s.LessonMarkdown != "" && s.Challenge != nil
}

// HasSubmission returns true if a submission is pending evaluation.
func (s *Session) HasSubmission() bool {
	return s.Submission != ""
}

// =============================================================================
// Attempt Tracking
// =============================================================================

// RecordEvaluation appends the submission and its verdict to the history and
// increments the attempt counter - exactly once per evaluation execution.
func (s *Session) RecordEvaluation(eval Evaluation) {
	s.AttemptCount++
	s.Evaluation = &eval
	s.History = append(s.History, SubmissionRecord{
		Attempt:    s.AttemptCount,
		Submission: s.Submission,
		Evaluation: eval,
		Timestamp:  time.Now().UTC(),
	})
	if eval.Passed {
		s.Status = StatusPassed
		now := time.Now().UTC()
		s.CompletedAt = &now
	} else {
		s.Status = StatusNeedsRemediation
	}
}

// RecordRemediation stores the hint payload, clears the submission so a
// fresh one is required before the next evaluation, and returns the session
// to the suspend point.
func (s *Session) RecordRemediation(rem Remediation) {
	s.Remediation = &rem
	s.Submission = ""
	s.Status = StatusAwaitingCode
}

// =============================================================================
// Error Slot
// =============================================================================

// SetStageError records a stage failure and moves the session to the error
// status. Prior passing state (lesson, challenge, history) is untouched.
func (s *Session) SetStageError(stage string, err error) {
	s.Err = &StageError{Stage: stage, Message: err.Error()}
	s.Status = StatusError
}

// ClearStageError clears the error slot before an idempotent retry of the
// failing stage. The caller supplies the status to retry from.
func (s *Session) ClearStageError(retryFrom Status) {
	s.Err = nil
	s.Status = retryFrom
}

// =============================================================================
// Clone - Deep Copy for Checkpointing
// =============================================================================

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s

	clone.ChallengeData = deepCopyAnyMap(s.ChallengeData)
	clone.Metadata = deepCopyAnyMap(s.Metadata)

	if s.Challenge != nil {
		spec := *s.Challenge
		spec.SuccessCriteria = copyStringSlice(s.Challenge.SuccessCriteria)
		spec.HintsBank = copyStringSlice(s.Challenge.HintsBank)
		clone.Challenge = &spec
	}
	if s.Evaluation != nil {
		eval := copyEvaluation(*s.Evaluation)
		clone.Evaluation = &eval
	}
	if s.Remediation != nil {
		rem := *s.Remediation
		clone.Remediation = &rem
	}
	if s.Err != nil {
		e := *s.Err
		clone.Err = &e
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}

	clone.History = make([]SubmissionRecord, len(s.History))
	for i, rec := range s.History {
		clone.History[i] = rec
		clone.History[i].Evaluation = copyEvaluation(rec.Evaluation)
	}

	return &clone
}

func copyEvaluation(e Evaluation) Evaluation {
	e.Errors = copyStringSlice(e.Errors)
	e.WhatWorked = copyStringSlice(e.WhatWorked)
	e.WhatNeedsWork = copyStringSlice(e.WhatNeedsWork)
	return e
}

func copyStringSlice(s []string) []string {
	if s == nil {
		return nil
	}
	result := make([]string, len(s))
	copy(result, s)
	return result
}

func deepCopyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyAnyMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = deepCopyValue(item)
		}
		return result
	case []string:
		return copyStringSlice(val)
	default:
		return v // Primitives are copied by value
	}
}

// =============================================================================
// Response Helpers
// =============================================================================

// ToResultDict converts to a result dictionary for API responses.
func (s *Session) ToResultDict() map[string]any {
	result := map[string]any{
		"session_id":       s.SessionID,
		"module_number":    s.ModuleNumber,
		"challenge_number": s.ChallengeNumber,
		"status":           string(s.Status),
		"attempt_count":    s.AttemptCount,
		"lesson_markdown":  s.LessonMarkdown,
	}
	if s.Challenge != nil {
		result["coding_challenge"] = s.Challenge
	}
	if s.Evaluation != nil {
		result["evaluation"] = s.Evaluation
	}
	if s.Remediation != nil {
		result["remediation"] = s.Remediation
	}
	if s.Err != nil {
		result["error"] = map[string]any{
			"stage":   s.Err.Stage,
			"message": s.Err.Message,
		}
	}
	return result
}
