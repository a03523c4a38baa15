package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
)

// LessonStage generates the personalized lesson markdown for a session.
type LessonStage struct {
	adapter *structured.Adapter
	retry   structured.RetryConfig
	logger  Logger
}

// NewLessonStage creates the lesson generation stage.
func NewLessonStage(adapter *structured.Adapter, logger Logger) *LessonStage {
	return &LessonStage{
		adapter: adapter,
		retry:   structured.DefaultRetryConfig(),
		logger:  orNop(logger).Bind("stage", StageLesson),
	}
}

// WithRetry overrides the default generator retry policy.
func (s *LessonStage) WithRetry(cfg structured.RetryConfig) *LessonStage {
	s.retry = cfg
	return s
}

func (s *LessonStage) Name() string { return StageLesson }

// Run produces the lesson. A session that already carries a lesson is left
// untouched, so re-driving the machine through this stage is idempotent.
func (s *LessonStage) Run(ctx context.Context, sess *session.Session) (err error) {
	ctx, done := instrument(ctx, StageLesson, s.logger, sess)
	defer func() { done(err) }()

	if sess.LessonMarkdown != "" {
		s.logger.Debug("lesson_already_present", "session_id", sess.SessionID)
		sess.Status = session.StatusLessonReady
		return nil
	}

	markdown, err := s.adapter.InvokeTextWithRetry(ctx, "generate_lesson", lessonPrompt(sess), s.retry, s.notifyRetry)
	if err != nil {
		return err
	}
	if markdown == "" {
		err = fmt.Errorf("generator returned an empty lesson")
		return err
	}

	s.logger.Debug("lesson_generated",
		"session_id", sess.SessionID,
		"lesson_length", len(markdown),
		"preview", truncate(markdown, 200),
	)

	sess.SetLesson(markdown)
	sess.Status = session.StatusLessonReady
	return nil
}

func (s *LessonStage) notifyRetry(err error, next time.Duration) {
	s.logger.Warn("generator_retry", "error", err.Error(), "next_attempt_in", next.String())
}
