// Package workflow provides the state machine that drives a challenge
// session through its stages.
//
// The machine is an explicit finite state machine over session statuses. Each
// non-terminal status maps to exactly one stage; the single conditional
// branch (passed vs needs_remediation) is decided inside the evaluation
// stage, and awaiting_code is the designated suspend point. The machine
// checkpoints the session after every stage execution, so a crash at any
// point resumes from the last completed stage.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptive-learning-os/challengecore/coreengine/checkpoint"
	"github.com/adaptive-learning-os/challengecore/coreengine/observability"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
	"github.com/adaptive-learning-os/challengecore/events"
)

// maxTransitions bounds one Run invocation. The longest legal path is five
// stage executions (lesson, challenge, evaluate, remediate, evaluate is not
// possible in one call since remediation suspends), so anything past this is
// a routing bug, not a long session.
const maxTransitions = 10

// StageSet carries the four stages the machine routes between.
type StageSet struct {
	Lesson    stages.Stage
	Challenge stages.Stage
	Evaluate  stages.Stage
	Remediate stages.Stage
}

// Machine drives sessions through the stage graph with checkpointing.
type Machine struct {
	table  map[session.Status]stages.Stage
	store  checkpoint.Store
	bus    events.Bus
	logger stages.Logger
}

// NewMachine builds the machine and validates the transition table: every
// non-terminal, non-suspend status must have a stage.
func NewMachine(set StageSet, store checkpoint.Store, bus events.Bus, logger stages.Logger) (*Machine, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow: checkpoint store is required")
	}

	table := map[session.Status]stages.Stage{
		session.StatusCreatingLesson:   set.Lesson,
		session.StatusLessonReady:      set.Challenge,
		session.StatusEvaluating:       set.Evaluate,
		session.StatusNeedsRemediation: set.Remediate,
	}
	for status, stage := range table {
		if stage == nil {
			return nil, fmt.Errorf("workflow: no stage for status %q", status)
		}
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &Machine{
		table:  table,
		store:  store,
		bus:    bus,
		logger: logger.Bind("component", "workflow"),
	}, nil
}

// Run drives the session until it suspends at awaiting_code, reaches a
// terminal status, or fails into the error status. The session is mutated in
// place and also returned for convenience.
//
// At the suspend point: without a submission the machine halts without any
// external call; with one it transitions to evaluating and continues.
func (m *Machine) Run(ctx context.Context, sess *session.Session) (*session.Session, error) {
	for i := 0; i < maxTransitions; i++ {
		if err := ctx.Err(); err != nil {
			return sess, err
		}

		switch sess.Status {
		case session.StatusPassed:
			m.publish(ctx, &events.SessionCompleted{
				SessionID:    sess.SessionID,
				Status:       string(sess.Status),
				AttemptCount: sess.AttemptCount,
			})
			observability.RecordSessionCompleted(string(sess.Status))
			return sess, nil

		case session.StatusError:
			// Never auto-advances; Retry is the only way out.
			return sess, nil

		case session.StatusAwaitingCode:
			if !sess.HasSubmission() {
				m.persist(ctx, sess)
				m.publish(ctx, &events.SessionSuspended{
					SessionID:    sess.SessionID,
					AttemptCount: sess.AttemptCount,
					HintLevel:    currentHintLevel(sess),
				})
				m.logger.Info("session_suspended",
					"session_id", sess.SessionID,
					"attempt_count", sess.AttemptCount,
				)
				return sess, nil
			}
			sess.Status = session.StatusEvaluating

		default:
			stage, ok := m.table[sess.Status]
			if !ok {
				return sess, fmt.Errorf("workflow: no transition from status %q", sess.Status)
			}
			if err := m.runStage(ctx, stage, sess); err != nil {
				return sess, err
			}
		}
	}

	return sess, fmt.Errorf("workflow: transition limit exceeded for session %s", sess.SessionID)
}

// runStage executes one stage with panic recovery, checkpoints the result,
// and publishes the stage outcome. A failing stage moves the session to the
// error status; the error is also returned to the caller.
func (m *Machine) runStage(ctx context.Context, stage stages.Stage, sess *session.Session) error {
	start := time.Now()

	err := stages.SafeExecute(m.logger, stage.Name(), func() error {
		return stage.Run(ctx, sess)
	})

	if err != nil {
		sess.SetStageError(stage.Name(), err)
		m.persist(ctx, sess)
		m.publish(ctx, &events.StageFailed{
			SessionID: sess.SessionID,
			Stage:     stage.Name(),
			Error:     err.Error(),
		})
		msg := err.Error()
		m.publish(ctx, &events.SessionCompleted{
			SessionID:    sess.SessionID,
			Status:       string(session.StatusError),
			AttemptCount: sess.AttemptCount,
			Error:        &msg,
		})
		observability.RecordSessionCompleted(string(session.StatusError))
		return err
	}

	m.persist(ctx, sess)
	m.publish(ctx, &events.StageCompleted{
		SessionID:  sess.SessionID,
		Stage:      stage.Name(),
		Status:     string(sess.Status),
		DurationMS: int(time.Since(start).Milliseconds()),
	})

	switch stage.Name() {
	case stages.StageEvaluate:
		if sess.Evaluation != nil {
			m.publish(ctx, &events.AttemptEvaluated{
				SessionID: sess.SessionID,
				Attempt:   sess.AttemptCount,
				Passed:    sess.Evaluation.Passed,
				Score:     sess.Evaluation.Score,
			})
		}
	case stages.StageRemediate:
		if sess.Remediation != nil {
			m.publish(ctx, &events.HintIssued{
				SessionID: sess.SessionID,
				Attempt:   sess.AttemptCount,
				HintLevel: sess.Remediation.HintLevel,
			})
		}
	}

	return nil
}

// Retry clears the error slot and re-invokes the stage that failed, then
// continues the normal run. Calling it on a session that is not in the error
// status is equivalent to Run.
func (m *Machine) Retry(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if sess.Status == session.StatusError && sess.Err != nil {
		retryFrom, err := statusForStage(sess.Err.Stage)
		if err != nil {
			return sess, err
		}
		m.logger.Info("stage_retry",
			"session_id", sess.SessionID,
			"stage", sess.Err.Stage,
		)
		sess.ClearStageError(retryFrom)
	}
	return m.Run(ctx, sess)
}

// Resume loads the last checkpoint for sessionID, merges an externally
// supplied submission, and continues the run. An empty submission resumes
// without injecting anything, which at the suspend point is a no-op.
func (m *Machine) Resume(ctx context.Context, sessionID, submission string) (*session.Session, error) {
	sess, err := m.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if submission != "" {
		sess.Submission = submission
	}
	return m.Run(ctx, sess)
}

// Load restores a session from its last checkpoint.
func (m *Machine) Load(ctx context.Context, sessionID string) (*session.Session, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.FromStateDict(state), nil
}

// persist saves the session state. Checkpointing is at-least-once: a failed
// save is logged and the run continues, the next stage boundary writes again.
func (m *Machine) persist(ctx context.Context, sess *session.Session) {
	if err := m.store.Save(ctx, sess.SessionID, sess.ToStateDict()); err != nil {
		m.logger.Warn("state_persist_error",
			"session_id", sess.SessionID,
			"error", err.Error(),
		)
	}
}

// publish emits a bus event. Event delivery failures never affect the
// workflow.
func (m *Machine) publish(ctx context.Context, event events.Message) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, event); err != nil {
		m.logger.Warn("event_publish_error",
			"event", events.GetMessageType(event),
			"error", err.Error(),
		)
	}
}

// statusForStage maps a failed stage name back to the status it executes
// from, for idempotent retry.
func statusForStage(stageName string) (session.Status, error) {
	switch stageName {
	case stages.StageLesson:
		return session.StatusCreatingLesson, nil
	case stages.StageChallenge:
		return session.StatusLessonReady, nil
	case stages.StageEvaluate:
		return session.StatusEvaluating, nil
	case stages.StageRemediate:
		return session.StatusNeedsRemediation, nil
	}
	return "", fmt.Errorf("workflow: unknown stage %q in error slot", stageName)
}

func currentHintLevel(sess *session.Session) int {
	if sess.Remediation == nil {
		return 0
	}
	return sess.Remediation.HintLevel
}

// noopLogger is used when no logger is supplied.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)         {}
func (noopLogger) Debug(string, ...any)        {}
func (noopLogger) Warn(string, ...any)         {}
func (noopLogger) Error(string, ...any)        {}
func (n noopLogger) Bind(...any) stages.Logger { return n }
