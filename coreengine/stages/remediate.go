package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/policy"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
)

// RemediateStage produces a progressive hint after a failed evaluation and
// returns the session to the suspend point for the next attempt.
type RemediateStage struct {
	adapter *structured.Adapter
	retry   structured.RetryConfig
	logger  Logger
}

// NewRemediateStage creates the remediation stage.
func NewRemediateStage(adapter *structured.Adapter, logger Logger) *RemediateStage {
	return &RemediateStage{
		adapter: adapter,
		retry:   structured.DefaultRetryConfig(),
		logger:  orNop(logger).Bind("stage", StageRemediate),
	}
}

// WithRetry overrides the default generator retry policy.
func (s *RemediateStage) WithRetry(cfg structured.RetryConfig) *RemediateStage {
	s.retry = cfg
	return s
}

func (s *RemediateStage) Name() string { return StageRemediate }

// Run generates the hint for the most recent failed attempt. The hint level
// is derived from the attempt counter, never from the generator: a document
// claiming a different level is overridden.
func (s *RemediateStage) Run(ctx context.Context, sess *session.Session) (err error) {
	ctx, done := instrument(ctx, StageRemediate, s.logger, sess)
	defer func() { done(err) }()

	if sess.Evaluation == nil {
		err = fmt.Errorf("cannot remediate without an evaluation")
		return err
	}
	if sess.Evaluation.Passed {
		err = fmt.Errorf("cannot remediate a passing evaluation")
		return err
	}

	hintLevel := policy.HintLevel(sess.AttemptCount)

	doc, err := s.adapter.InvokeWithRetry(ctx, "generate_remediation", remediationPrompt(sess, hintLevel), s.retry, s.notifyRetry)
	if err != nil {
		return err
	}

	rem := remediationFromDoc(doc)
	rem.HintLevel = hintLevel

	s.logger.Info("remediation_generated",
		"session_id", sess.SessionID,
		"attempt", sess.AttemptCount,
		"hint_level", hintLevel,
		"hint_preview", truncate(rem.TargetedHint, 120),
	)

	sess.RecordRemediation(rem)
	return nil
}

func (s *RemediateStage) notifyRetry(err error, next time.Duration) {
	s.logger.Warn("generator_retry", "error", err.Error(), "next_attempt_in", next.String())
}

func remediationFromDoc(doc map[string]any) session.Remediation {
	return session.Remediation{
		HintLevel:          docInt(doc, "hint_level"),
		TargetedHint:       docString(doc, "targeted_hint"),
		Encouragement:      docString(doc, "encouragement"),
		KeyConceptReminder: docString(doc, "key_concept_reminder"),
	}
}
