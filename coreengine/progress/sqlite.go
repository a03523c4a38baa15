package progress

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed progress repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		learning_goal TEXT NOT NULL,
		experience_level TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS learning_paths (
		user_id TEXT PRIMARY KEY,
		path_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS module_roadmaps (
		user_id TEXT NOT NULL,
		module_number INTEGER NOT NULL,
		roadmap_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, module_number)
	);

	CREATE TABLE IF NOT EXISTS challenge_progress (
		user_id TEXT NOT NULL,
		module_number INTEGER NOT NULL,
		challenge_number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'locked',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		lesson_markdown TEXT,
		coding_challenge_json TEXT,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, module_number, challenge_number)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_user ON challenge_progress(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// =============================================================================
// Profile
// =============================================================================

// UpsertProfile creates or updates the learner profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	query := `
	INSERT INTO profiles (user_id, learning_goal, experience_level, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		learning_goal = excluded.learning_goal,
		experience_level = excluded.experience_level,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	created := profile.CreatedAt.Unix()
	if profile.CreatedAt.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, query,
		profile.UserID, profile.LearningGoal, profile.ExperienceLevel, created, now,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetProfile retrieves the learner profile, nil when absent.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT user_id, learning_goal, experience_level, created_at, updated_at FROM profiles WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var p Profile
	var createdAt, updatedAt int64
	err := row.Scan(&p.UserID, &p.LearningGoal, &p.ExperienceLevel, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// =============================================================================
// Learning path / roadmaps
// =============================================================================

// SaveLearningPath stores the learning path document for a user.
func (s *SQLiteStore) SaveLearningPath(ctx context.Context, userID, pathJSON string) error {
	query := `
	INSERT INTO learning_paths (user_id, path_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		path_json = excluded.path_json,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, userID, pathJSON, time.Now().Unix()); err != nil {
		return fmt.Errorf("save learning path: %w", err)
	}
	return nil
}

// GetLearningPath retrieves the learning path document, empty when absent.
func (s *SQLiteStore) GetLearningPath(ctx context.Context, userID string) (string, error) {
	var pathJSON string
	err := s.db.QueryRowContext(ctx, `SELECT path_json FROM learning_paths WHERE user_id = ?`, userID).Scan(&pathJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan learning path: %w", err)
	}
	return pathJSON, nil
}

// SaveModuleRoadmap stores the roadmap document for one module.
func (s *SQLiteStore) SaveModuleRoadmap(ctx context.Context, userID string, moduleNumber int, roadmapJSON string) error {
	query := `
	INSERT INTO module_roadmaps (user_id, module_number, roadmap_json, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id, module_number) DO UPDATE SET
		roadmap_json = excluded.roadmap_json,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, userID, moduleNumber, roadmapJSON, time.Now().Unix()); err != nil {
		return fmt.Errorf("save module roadmap: %w", err)
	}
	return nil
}

// GetModuleRoadmap retrieves the roadmap document, empty when absent.
func (s *SQLiteStore) GetModuleRoadmap(ctx context.Context, userID string, moduleNumber int) (string, error) {
	var roadmapJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT roadmap_json FROM module_roadmaps WHERE user_id = ? AND module_number = ?`,
		userID, moduleNumber,
	).Scan(&roadmapJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan module roadmap: %w", err)
	}
	return roadmapJSON, nil
}

// =============================================================================
// Challenge progress
// =============================================================================

// InitModuleProgress seeds progress rows for one module: the first challenge
// starts in_progress, the rest locked. Existing rows are left untouched.
func (s *SQLiteStore) InitModuleProgress(ctx context.Context, userID string, moduleNumber, numChallenges int) error {
	query := `
	INSERT INTO challenge_progress (user_id, module_number, challenge_number, status, attempt_count, updated_at)
	VALUES (?, ?, ?, ?, 0, ?)
	ON CONFLICT(user_id, module_number, challenge_number) DO NOTHING`

	now := time.Now().Unix()
	for i := 1; i <= numChallenges; i++ {
		status := StatusLocked
		if i == 1 {
			status = StatusInProgress
		}
		if _, err := s.db.ExecContext(ctx, query, userID, moduleNumber, i, status, now); err != nil {
			return fmt.Errorf("init module progress: %w", err)
		}
	}
	return nil
}

// GetChallengeProgress retrieves one progress cell, nil when absent.
func (s *SQLiteStore) GetChallengeProgress(ctx context.Context, userID string, moduleNumber, challengeNumber int) (*ChallengeProgress, error) {
	query := `
	SELECT user_id, module_number, challenge_number, status, attempt_count,
	       lesson_markdown, coding_challenge_json, updated_at
	FROM challenge_progress
	WHERE user_id = ? AND module_number = ? AND challenge_number = ?`

	row := s.db.QueryRowContext(ctx, query, userID, moduleNumber, challengeNumber)

	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge progress: %w", err)
	}
	return p, nil
}

// CacheContent stores the generated lesson and challenge spec on the
// progress row so a revisit serves cached content. Creates the row as
// in_progress if it doesn't exist yet.
func (s *SQLiteStore) CacheContent(ctx context.Context, userID string, moduleNumber, challengeNumber int, lessonMarkdown, challengeJSON string) error {
	query := `
	INSERT INTO challenge_progress (user_id, module_number, challenge_number, status, attempt_count, lesson_markdown, coding_challenge_json, updated_at)
	VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	ON CONFLICT(user_id, module_number, challenge_number) DO UPDATE SET
		lesson_markdown = excluded.lesson_markdown,
		coding_challenge_json = excluded.coding_challenge_json,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		userID, moduleNumber, challengeNumber, StatusInProgress,
		lessonMarkdown, challengeJSON, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache content: %w", err)
	}
	return nil
}

// RecordAttempt updates the attempt counter on the progress row.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, userID string, moduleNumber, challengeNumber, attemptCount int) error {
	query := `
	UPDATE challenge_progress SET attempt_count = ?, updated_at = ?
	WHERE user_id = ? AND module_number = ? AND challenge_number = ?`

	if _, err := s.db.ExecContext(ctx, query, attemptCount, time.Now().Unix(), userID, moduleNumber, challengeNumber); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// CompleteChallenge marks a challenge completed.
func (s *SQLiteStore) CompleteChallenge(ctx context.Context, userID string, moduleNumber, challengeNumber int) error {
	query := `
	UPDATE challenge_progress SET status = ?, updated_at = ?
	WHERE user_id = ? AND module_number = ? AND challenge_number = ?`

	if _, err := s.db.ExecContext(ctx, query, StatusCompleted, time.Now().Unix(), userID, moduleNumber, challengeNumber); err != nil {
		return fmt.Errorf("complete challenge: %w", err)
	}
	return nil
}

// UnlockNextChallenge moves the next locked challenge to in_progress: the
// following challenge in the same module, or the first challenge of the next
// module when the current one was last.
func (s *SQLiteStore) UnlockNextChallenge(ctx context.Context, userID string, moduleNumber, challengeNumber int) error {
	unlock := `
	UPDATE challenge_progress SET status = ?, updated_at = ?
	WHERE user_id = ? AND module_number = ? AND challenge_number = ? AND status = ?`

	now := time.Now().Unix()

	res, err := s.db.ExecContext(ctx, unlock, StatusInProgress, now, userID, moduleNumber, challengeNumber+1, StatusLocked)
	if err != nil {
		return fmt.Errorf("unlock next challenge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlock next challenge rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// No next challenge in this module; try the first of the next module.
	if _, err := s.db.ExecContext(ctx, unlock, StatusInProgress, now, userID, moduleNumber+1, 1, StatusLocked); err != nil {
		return fmt.Errorf("unlock next module: %w", err)
	}
	return nil
}

// =============================================================================
// Aggregation
// =============================================================================

// GetAllProgress returns every progress row for a user, ordered by module
// then challenge.
func (s *SQLiteStore) GetAllProgress(ctx context.Context, userID string) ([]ChallengeProgress, error) {
	query := `
	SELECT user_id, module_number, challenge_number, status, attempt_count,
	       lesson_markdown, coding_challenge_json, updated_at
	FROM challenge_progress
	WHERE user_id = ?
	ORDER BY module_number, challenge_number`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query all progress: %w", err)
	}
	defer rows.Close()

	var result []ChallengeProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress rows: %w", err)
	}
	return result, nil
}

// GetSummary aggregates completion counts per module and overall.
func (s *SQLiteStore) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	all, err := s.GetAllProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	byModule := make(map[int]*ModuleSummary)
	summary := &Summary{}

	for _, p := range all {
		ms, ok := byModule[p.ModuleNumber]
		if !ok {
			ms = &ModuleSummary{ModuleNumber: p.ModuleNumber}
			byModule[p.ModuleNumber] = ms
		}
		ms.TotalChallenges++
		summary.TotalChallenges++

		switch p.Status {
		case StatusCompleted:
			ms.Completed++
			summary.TotalCompleted++
			ms.Unlocked = true
		case StatusInProgress:
			ms.InProgress++
			ms.Unlocked = true
		}
	}

	modules := make([]int, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Ints(modules)
	for _, m := range modules {
		summary.Modules = append(summary.Modules, *byModule[m])
	}

	return summary, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (*ChallengeProgress, error) {
	var p ChallengeProgress
	var lesson, challengeJSON sql.NullString
	var updatedAt int64

	err := row.Scan(
		&p.UserID, &p.ModuleNumber, &p.ChallengeNumber, &p.Status, &p.AttemptCount,
		&lesson, &challengeJSON, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.LessonMarkdown = lesson.String
	p.ChallengeJSON = challengeJSON.String
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// Ensure SQLiteStore implements Repository.
var _ Repository = (*SQLiteStore)(nil)
