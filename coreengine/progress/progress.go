// Package progress persists learner records across sessions: profile,
// learning path, module roadmaps, and per-challenge completion state.
//
// The challenge workflow itself is checkpointed separately; this store is the
// long-lived record the API layer reads for caching and progress summaries.
package progress

import (
	"context"
	"time"
)

// Challenge progress statuses.
const (
	StatusLocked     = "locked"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Profile is the learner profile record.
type Profile struct {
	UserID          string    `json:"user_id"`
	LearningGoal    string    `json:"learning_goal"`
	ExperienceLevel string    `json:"experience_level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ChallengeProgress tracks one (module, challenge) cell of the roadmap,
// including cached generated content so a revisit never regenerates.
type ChallengeProgress struct {
	UserID          string    `json:"user_id"`
	ModuleNumber    int       `json:"module_number"`
	ChallengeNumber int       `json:"challenge_number"`
	Status          string    `json:"status"`
	AttemptCount    int       `json:"attempt_count"`
	LessonMarkdown  string    `json:"lesson_markdown,omitempty"`
	ChallengeJSON   string    `json:"coding_challenge_json,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasContent reports whether both generated artifacts are cached.
func (p *ChallengeProgress) HasContent() bool {
	return p.LessonMarkdown != "" && p.ChallengeJSON != ""
}

// Summary is the aggregated completion view across all modules.
type Summary struct {
	TotalChallenges int             `json:"total_challenges"`
	TotalCompleted  int             `json:"total_completed"`
	Modules         []ModuleSummary `json:"modules"`
}

// ModuleSummary is the per-module slice of a Summary.
type ModuleSummary struct {
	ModuleNumber    int  `json:"module_number"`
	TotalChallenges int  `json:"total_challenges"`
	Completed       int  `json:"completed"`
	InProgress      int  `json:"in_progress"`
	Unlocked        bool `json:"unlocked"`
}

// CompletionPercent computes overall completion, 0 when nothing is tracked.
func (s *Summary) CompletionPercent() float64 {
	if s.TotalChallenges == 0 {
		return 0
	}
	return float64(s.TotalCompleted) / float64(s.TotalChallenges) * 100
}

// Repository is the protocol for the progress store.
type Repository interface {
	// Profile
	UpsertProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// Learning path and roadmaps, stored as opaque JSON documents
	SaveLearningPath(ctx context.Context, userID, pathJSON string) error
	GetLearningPath(ctx context.Context, userID string) (string, error)
	SaveModuleRoadmap(ctx context.Context, userID string, moduleNumber int, roadmapJSON string) error
	GetModuleRoadmap(ctx context.Context, userID string, moduleNumber int) (string, error)

	// Challenge progress
	InitModuleProgress(ctx context.Context, userID string, moduleNumber, numChallenges int) error
	GetChallengeProgress(ctx context.Context, userID string, moduleNumber, challengeNumber int) (*ChallengeProgress, error)
	CacheContent(ctx context.Context, userID string, moduleNumber, challengeNumber int, lessonMarkdown, challengeJSON string) error
	RecordAttempt(ctx context.Context, userID string, moduleNumber, challengeNumber, attemptCount int) error
	CompleteChallenge(ctx context.Context, userID string, moduleNumber, challengeNumber int) error
	UnlockNextChallenge(ctx context.Context, userID string, moduleNumber, challengeNumber int) error

	// Aggregation
	GetAllProgress(ctx context.Context, userID string) ([]ChallengeProgress, error)
	GetSummary(ctx context.Context, userID string) (*Summary, error)

	Close() error
}
