package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/observability"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
)

// EvaluateStage judges a submission against the challenge's success criteria
// without executing it.
type EvaluateStage struct {
	adapter *structured.Adapter
	retry   structured.RetryConfig
	logger  Logger
}

// NewEvaluateStage creates the submission evaluation stage.
func NewEvaluateStage(adapter *structured.Adapter, logger Logger) *EvaluateStage {
	return &EvaluateStage{
		adapter: adapter,
		retry:   structured.DefaultRetryConfig(),
		logger:  orNop(logger).Bind("stage", StageEvaluate),
	}
}

// WithRetry overrides the default generator retry policy.
func (s *EvaluateStage) WithRetry(cfg structured.RetryConfig) *EvaluateStage {
	s.retry = cfg
	return s
}

func (s *EvaluateStage) Name() string { return StageEvaluate }

// Run evaluates the pending submission. Exactly one attempt is recorded per
// successful execution; a failed generator call records nothing, so the
// attempt counter only ever moves in lockstep with the history.
func (s *EvaluateStage) Run(ctx context.Context, sess *session.Session) (err error) {
	ctx, done := instrument(ctx, StageEvaluate, s.logger, sess)
	defer func() { done(err) }()

	if sess.Challenge == nil {
		err = fmt.Errorf("cannot evaluate before challenge exists")
		return err
	}
	if !sess.HasSubmission() {
		err = fmt.Errorf("cannot evaluate without a submission")
		return err
	}

	doc, err := s.adapter.InvokeWithRetry(ctx, "evaluate_submission", evaluationPrompt(sess), s.retry, s.notifyRetry)
	if err != nil {
		return err
	}

	eval, err := evaluationFromDoc(doc)
	if err != nil {
		return err
	}

	sess.RecordEvaluation(eval)
	observability.RecordSubmissionAttempt(eval.Passed)

	s.logger.Info("submission_evaluated",
		"session_id", sess.SessionID,
		"passed", eval.Passed,
		"score", eval.Score,
		"attempt", sess.AttemptCount,
		"errors_found", len(eval.Errors),
	)
	return nil
}

func (s *EvaluateStage) notifyRetry(err error, next time.Duration) {
	s.logger.Warn("generator_retry", "error", err.Error(), "next_attempt_in", next.String())
}

// evaluationFromDoc converts a generator document into an Evaluation. The
// verdict field is mandatory; everything else degrades to empty values.
func evaluationFromDoc(doc map[string]any) (session.Evaluation, error) {
	passed, ok := docBool(doc, "passed")
	if !ok {
		return session.Evaluation{}, fmt.Errorf("evaluation document missing passed verdict")
	}

	return session.Evaluation{
		Passed:        passed,
		Score:         docInt(doc, "score"),
		Errors:        docStringSlice(doc, "errors"),
		Feedback:      docString(doc, "feedback"),
		WhatWorked:    docStringSlice(doc, "what_worked"),
		WhatNeedsWork: docStringSlice(doc, "what_needs_work"),
	}, nil
}
