// Package controller exposes the session-level operations the API layer
// drives: start a challenge session, submit code, read current state.
//
// The controller owns the re-entrancy guard: a per-session mutex ensures at
// most one workflow advance per session at a time, so two concurrent submits
// for the same session serialize instead of double-evaluating.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/adaptive-learning-os/challengecore/coreengine/checkpoint"
	"github.com/adaptive-learning-os/challengecore/coreengine/observability"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
	"github.com/adaptive-learning-os/challengecore/coreengine/workflow"
	"github.com/adaptive-learning-os/challengecore/events"
)

// StartRequest carries everything needed to open a challenge session.
type StartRequest struct {
	UserID           string
	ModuleNumber     int
	ChallengeNumber  int
	ChallengeData    map[string]any
	ExperienceLevel  session.ExperienceLevel
	LearningGoalType string
}

// Controller coordinates session lifecycle operations.
type Controller struct {
	machine *workflow.Machine
	bus     events.Bus
	logger  stages.Logger
	locks   *sessionLocks
}

// New creates a Controller.
func New(machine *workflow.Machine, bus events.Bus, logger stages.Logger) *Controller {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Controller{
		machine: machine,
		bus:     bus,
		logger:  logger.Bind("component", "controller"),
		locks:   newSessionLocks(),
	}
}

// Start opens the session for (user, module, challenge) and drives it to the
// suspend point. Re-requesting an existing session loads its checkpoint
// instead of regenerating content; a session stranded mid-pipeline by a
// crash is driven forward, and one in the error status is retried.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*session.Session, error) {
	if err := validateStart(req); err != nil {
		return nil, err
	}

	sessionID := session.ID(req.UserID, req.ModuleNumber, req.ChallengeNumber)
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.machine.Load(ctx, sessionID)
	switch {
	case err == nil:
		c.logger.Debug("session_loaded", "session_id", sessionID, "status", string(sess.Status))
		return c.machine.Retry(ctx, sess)

	case errors.Is(err, checkpoint.ErrNotFound):
		sess = session.New(req.UserID, req.ModuleNumber, req.ChallengeNumber, req.ChallengeData, req.ExperienceLevel, req.LearningGoalType)
		observability.RecordSessionStarted()
		c.publish(ctx, &events.SessionStarted{
			SessionID:       sess.SessionID,
			UserID:          sess.UserID,
			ModuleNumber:    sess.ModuleNumber,
			ChallengeNumber: sess.ChallengeNumber,
		})
		c.logger.Info("session_started", "session_id", sessionID, "level", string(req.ExperienceLevel))
		return c.machine.Run(ctx, sess)

	default:
		return nil, err
	}
}

// Submit injects a learner submission and drives the session through
// evaluation. Only a session suspended at awaiting_code accepts submissions;
// a session in the error status retries its failed stage instead, and a
// passed session rejects the submission with its state unchanged.
func (c *Controller) Submit(ctx context.Context, sessionID, code string) (*session.Session, error) {
	if code == "" {
		return nil, NewPreconditionError(sessionID, "", "submission must not be empty")
	}

	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.machine.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}

	switch sess.Status {
	case session.StatusAwaitingCode:
		sess.Submission = code
		return c.machine.Run(ctx, sess)

	case session.StatusError:
		// Idempotent retry of the failed stage. A fresh submission replaces
		// the pending one when the evaluation itself failed.
		if sess.Err != nil && sess.Err.Stage == stages.StageEvaluate {
			sess.Submission = code
		}
		return c.machine.Retry(ctx, sess)

	default:
		return nil, NewPreconditionError(sessionID, string(sess.Status), "session does not accept submissions")
	}
}

// Get returns the current session state without advancing the workflow.
func (c *Controller) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := c.machine.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return sess, nil
}

func (c *Controller) publish(ctx context.Context, event events.Message) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Warn("event_publish_error",
			"event", events.GetMessageType(event),
			"error", err.Error(),
		)
	}
}

func validateStart(req StartRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("controller: user ID is required")
	}
	if req.ModuleNumber < 1 || req.ChallengeNumber < 1 {
		return fmt.Errorf("controller: module and challenge numbers must be positive")
	}
	if !req.ExperienceLevel.Valid() {
		return fmt.Errorf("controller: invalid experience level %q", req.ExperienceLevel)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)         {}
func (nopLogger) Debug(string, ...any)        {}
func (nopLogger) Warn(string, ...any)         {}
func (nopLogger) Error(string, ...any)        {}
func (n nopLogger) Bind(...any) stages.Logger { return n }
