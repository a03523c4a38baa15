package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
)

// ChallengeStage authors the assessment challenge from the generated lesson.
type ChallengeStage struct {
	adapter *structured.Adapter
	retry   structured.RetryConfig
	logger  Logger
}

// NewChallengeStage creates the challenge authoring stage.
func NewChallengeStage(adapter *structured.Adapter, logger Logger) *ChallengeStage {
	return &ChallengeStage{
		adapter: adapter,
		retry:   structured.DefaultRetryConfig(),
		logger:  orNop(logger).Bind("stage", StageChallenge),
	}
}

// WithRetry overrides the default generator retry policy.
func (s *ChallengeStage) WithRetry(cfg structured.RetryConfig) *ChallengeStage {
	s.retry = cfg
	return s
}

func (s *ChallengeStage) Name() string { return StageChallenge }

// Run authors the challenge spec and suspends the session at awaiting_code.
// Requires the lesson to exist; skips generation if a spec is already set.
func (s *ChallengeStage) Run(ctx context.Context, sess *session.Session) (err error) {
	ctx, done := instrument(ctx, StageChallenge, s.logger, sess)
	defer func() { done(err) }()

	if sess.LessonMarkdown == "" {
		err = fmt.Errorf("cannot author challenge before lesson exists")
		return err
	}
	if sess.Challenge != nil {
		s.logger.Debug("challenge_already_present", "session_id", sess.SessionID)
		sess.Status = session.StatusAwaitingCode
		return nil
	}

	doc, err := s.adapter.InvokeWithRetry(ctx, "author_challenge", challengePrompt(sess), s.retry, s.notifyRetry)
	if err != nil {
		return err
	}

	spec, err := specFromDoc(doc)
	if err != nil {
		return err
	}

	s.logger.Info("challenge_authored",
		"session_id", sess.SessionID,
		"format", spec.Format,
		"criteria_count", len(spec.SuccessCriteria),
		"hints_count", len(spec.HintsBank),
	)

	sess.SetChallenge(spec)
	sess.Status = session.StatusAwaitingCode
	return nil
}

func (s *ChallengeStage) notifyRetry(err error, next time.Duration) {
	s.logger.Warn("generator_retry", "error", err.Error(), "next_attempt_in", next.String())
}

// specFromDoc converts a generator document into a ChallengeSpec, rejecting
// documents that lack the fields every downstream stage depends on.
func specFromDoc(doc map[string]any) (*session.ChallengeSpec, error) {
	spec := &session.ChallengeSpec{
		Format:           docString(doc, "challenge_format"),
		Prompt:           docString(doc, "challenge_prompt"),
		StarterCode:      docString(doc, "starter_code"),
		ExpectedApproach: docString(doc, "expected_approach"),
		SuccessCriteria:  docStringSlice(doc, "success_criteria"),
		HintsBank:        docStringSlice(doc, "hints_bank"),
	}

	if spec.Format != "code" && spec.Format != "conceptual" {
		return nil, fmt.Errorf("challenge document has invalid format %q", spec.Format)
	}
	if spec.Prompt == "" {
		return nil, fmt.Errorf("challenge document missing challenge_prompt")
	}
	if len(spec.SuccessCriteria) == 0 {
		return nil, fmt.Errorf("challenge document missing success_criteria")
	}
	return spec, nil
}
