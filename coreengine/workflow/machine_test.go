package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptive-learning-os/challengecore/coreengine/checkpoint"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
	"github.com/adaptive-learning-os/challengecore/coreengine/testutil"
	"github.com/adaptive-learning-os/challengecore/coreengine/workflow"
	"github.com/adaptive-learning-os/challengecore/events"
)

func fastRetry() structured.RetryConfig {
	return structured.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func newTestMachine(t *testing.T, gen *testutil.MockGenerator) (*workflow.Machine, *checkpoint.MemoryStore, *events.InMemoryBus) {
	t.Helper()
	store := checkpoint.NewMemory()
	bus := events.NewInMemoryBus()
	machine := newMachineWithStore(t, gen, store, bus)
	return machine, store, bus
}

func newMachineWithStore(t *testing.T, gen *testutil.MockGenerator, store checkpoint.Store, bus events.Bus) *workflow.Machine {
	t.Helper()
	adapter := structured.NewAdapter(gen)
	set := workflow.StageSet{
		Lesson:    stages.NewLessonStage(adapter, nil).WithRetry(fastRetry()),
		Challenge: stages.NewChallengeStage(adapter, nil).WithRetry(fastRetry()),
		Evaluate:  stages.NewEvaluateStage(adapter, nil).WithRetry(fastRetry()),
		Remediate: stages.NewRemediateStage(adapter, nil).WithRetry(fastRetry()),
	}
	machine, err := workflow.NewMachine(set, store, bus, testutil.NewMockLogger())
	require.NoError(t, err)
	return machine
}

// eventRecorder collects published events by type for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Message
}

func (r *eventRecorder) record(bus *events.InMemoryBus, types ...string) {
	for _, eventType := range types {
		bus.Subscribe(eventType, func(ctx context.Context, msg events.Message) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, msg)
			return nil
		})
	}
}

func (r *eventRecorder) ofType(eventType string) []events.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []events.Message
	for _, e := range r.events {
		if events.GetMessageType(e) == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewMachineValidation(t *testing.T) {
	adapter := structured.NewAdapter(testutil.NewWorkflowGenerator())

	t.Run("requires a store", func(t *testing.T) {
		_, err := workflow.NewMachine(workflow.StageSet{}, nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("requires all stages", func(t *testing.T) {
		set := workflow.StageSet{
			Lesson: stages.NewLessonStage(adapter, nil),
			// Challenge missing
			Evaluate:  stages.NewEvaluateStage(adapter, nil),
			Remediate: stages.NewRemediateStage(adapter, nil),
		}
		_, err := workflow.NewMachine(set, checkpoint.NewMemory(), nil, nil)
		assert.Error(t, err)
	})
}

// =============================================================================
// RUN TO SUSPEND
// =============================================================================

func TestRunDrivesToSuspendPoint(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	machine, store, bus := newTestMachine(t, gen)
	rec := &eventRecorder{}
	rec.record(bus, "SessionSuspended", "StageCompleted")

	sess, err := machine.Run(context.Background(), testutil.NewSession())

	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingCode, sess.Status)
	assert.NotEmpty(t, sess.LessonMarkdown)
	require.NotNil(t, sess.Challenge)
	assert.Equal(t, 2, gen.GetCallCount(), "one lesson call, one challenge call")

	// Checkpointed after each stage plus once at the suspend point.
	assert.Equal(t, 3, store.SaveCount)

	require.Len(t, rec.ofType("SessionSuspended"), 1)
	assert.Len(t, rec.ofType("StageCompleted"), 2)

	suspended := rec.ofType("SessionSuspended")[0].(*events.SessionSuspended)
	assert.Equal(t, sess.SessionID, suspended.SessionID)
	assert.Equal(t, 0, suspended.AttemptCount)
	assert.Equal(t, 0, suspended.HintLevel)
}

func TestRunAtSuspendWithoutSubmissionIsIdle(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	machine, _, _ := newTestMachine(t, gen)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)
	callsAfterGeneration := gen.GetCallCount()

	// Re-driving a suspended session without a submission changes nothing.
	sess, err = machine.Run(context.Background(), sess)

	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingCode, sess.Status)
	assert.Equal(t, callsAfterGeneration, gen.GetCallCount(), "no generator call may happen while suspended")
	assert.Equal(t, 0, sess.AttemptCount)
}

// =============================================================================
// SUBMISSION CYCLE
// =============================================================================

func TestRunEvaluatesSubmissionToPass(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	machine, _, bus := newTestMachine(t, gen)
	rec := &eventRecorder{}
	rec.record(bus, "AttemptEvaluated", "SessionCompleted")

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)

	sess.Submission = "func fanOut() {}"
	sess, err = machine.Run(context.Background(), sess)

	require.NoError(t, err)
	assert.Equal(t, session.StatusPassed, sess.Status)
	assert.Equal(t, 1, sess.AttemptCount)
	require.NotNil(t, sess.CompletedAt)

	evaluated := rec.ofType("AttemptEvaluated")
	require.Len(t, evaluated, 1)
	assert.True(t, evaluated[0].(*events.AttemptEvaluated).Passed)

	completed := rec.ofType("SessionCompleted")
	require.Len(t, completed, 1)
	assert.Equal(t, "passed", completed[0].(*events.SessionCompleted).Status)
}

func TestFailedSubmissionProducesProgressiveHints(t *testing.T) {
	gen := testutil.NewWorkflowGenerator().
		WithResponse(testutil.EvaluationMarker, testutil.FailEvaluationResponse())
	machine, _, bus := newTestMachine(t, gen)
	rec := &eventRecorder{}
	rec.record(bus, "HintIssued")

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)
	lesson := sess.LessonMarkdown
	prompt := sess.Challenge.Prompt

	// Three failing attempts escalate hints 1 -> 2 -> 3.
	for attempt := 1; attempt <= 3; attempt++ {
		sess.Submission = fmt.Sprintf("broken attempt %d", attempt)
		sess, err = machine.Run(context.Background(), sess)

		require.NoError(t, err)
		assert.Equal(t, session.StatusAwaitingCode, sess.Status, "failed attempt returns to the suspend point")
		assert.Equal(t, attempt, sess.AttemptCount)
		assert.Empty(t, sess.Submission)
		require.NotNil(t, sess.Remediation)
		assert.Equal(t, attempt, sess.Remediation.HintLevel)
	}

	// A fourth failure saturates at level 3.
	sess.Submission = "still broken"
	sess, err = machine.Run(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Remediation.HintLevel)

	// Lesson and challenge never regenerate across the loop.
	assert.Equal(t, lesson, sess.LessonMarkdown)
	assert.Equal(t, prompt, sess.Challenge.Prompt)
	assert.Len(t, sess.History, 4)

	hints := rec.ofType("HintIssued")
	require.Len(t, hints, 4)
	assert.Equal(t, 1, hints[0].(*events.HintIssued).HintLevel)
	assert.Equal(t, 3, hints[3].(*events.HintIssued).HintLevel)
}

func TestPassAfterRemediation(t *testing.T) {
	gen := testutil.NewWorkflowGenerator().
		WithResponse(testutil.EvaluationMarker, testutil.FailEvaluationResponse())
	machine, _, _ := newTestMachine(t, gen)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)

	sess.Submission = "first try"
	sess, err = machine.Run(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, session.StatusAwaitingCode, sess.Status)

	// The learner fixes it; evaluation now passes.
	gen.WithResponse(testutil.EvaluationMarker, testutil.PassEvaluationResponse())
	sess.Submission = "second try"
	sess, err = machine.Run(context.Background(), sess)

	require.NoError(t, err)
	assert.Equal(t, session.StatusPassed, sess.Status)
	assert.Equal(t, 2, sess.AttemptCount)
	require.Len(t, sess.History, 2)
	assert.False(t, sess.History[0].Evaluation.Passed)
	assert.True(t, sess.History[1].Evaluation.Passed)
}

// =============================================================================
// CRASH RESUME
// =============================================================================

func TestResumeFromCheckpointAfterRestart(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	store := checkpoint.NewMemory()
	machine := newMachineWithStore(t, gen, store, nil)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)
	sessionID := sess.SessionID
	lesson := sess.LessonMarkdown
	callsBeforeRestart := gen.GetCallCount()

	// A fresh machine over the same store models a process restart.
	restarted := newMachineWithStore(t, gen, store, nil)
	resumed, err := restarted.Resume(context.Background(), sessionID, "func fanOut() {}")

	require.NoError(t, err)
	assert.Equal(t, session.StatusPassed, resumed.Status)
	assert.Equal(t, lesson, resumed.LessonMarkdown, "content must come from the checkpoint, not regeneration")
	assert.Equal(t, callsBeforeRestart+1, gen.GetCallCount(), "only the evaluation call may happen after resume")
}

func TestResumeWithoutSubmissionStaysSuspended(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	machine, _, _ := newTestMachine(t, gen)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)
	calls := gen.GetCallCount()

	resumed, err := machine.Resume(context.Background(), sess.SessionID, "")

	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingCode, resumed.Status)
	assert.Equal(t, calls, gen.GetCallCount())
}

func TestResumeUnknownSession(t *testing.T) {
	machine, _, _ := newTestMachine(t, testutil.NewWorkflowGenerator())

	_, err := machine.Resume(context.Background(), "user_ghost_m1_c1", "code")

	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

// =============================================================================
// ERROR STATUS AND RETRY
// =============================================================================

func TestStageFailureMovesSessionToError(t *testing.T) {
	gen := testutil.NewMockGenerator().WithError(fmt.Errorf("generator down"))
	machine, store, bus := newTestMachine(t, gen)
	rec := &eventRecorder{}
	rec.record(bus, "StageFailed", "SessionCompleted")

	sess, err := machine.Run(context.Background(), testutil.NewSession())

	require.Error(t, err)
	assert.Equal(t, session.StatusError, sess.Status)
	require.NotNil(t, sess.Err)
	assert.Equal(t, stages.StageLesson, sess.Err.Stage)

	// The error state is checkpointed so a restart sees it.
	state, loadErr := store.Load(context.Background(), sess.SessionID)
	require.NoError(t, loadErr)
	assert.Equal(t, "error", state["status"])

	require.Len(t, rec.ofType("StageFailed"), 1)
	completed := rec.ofType("SessionCompleted")
	require.Len(t, completed, 1)
	assert.Equal(t, "error", completed[0].(*events.SessionCompleted).Status)
	assert.NotNil(t, completed[0].(*events.SessionCompleted).Error)
}

func TestErrorStatusNeverAutoAdvances(t *testing.T) {
	gen := testutil.NewMockGenerator().WithError(fmt.Errorf("generator down"))
	machine, _, _ := newTestMachine(t, gen)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.Error(t, err)
	calls := gen.GetCallCount()

	// Run on an errored session halts immediately.
	sess, err = machine.Run(context.Background(), sess)

	require.NoError(t, err)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Equal(t, calls, gen.GetCallCount())
}

func TestRetryResumesFromFailedStage(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	gen.Error = fmt.Errorf("generator down")
	machine, _, _ := newTestMachine(t, gen)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.Error(t, err)
	require.Equal(t, session.StatusError, sess.Status)

	// The outage ends; retry re-runs the lesson stage and continues.
	gen.Error = nil
	sess, err = machine.Retry(context.Background(), sess)

	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingCode, sess.Status)
	assert.Nil(t, sess.Err)
	assert.NotEmpty(t, sess.LessonMarkdown)
}

func TestRetryPreservesCompletedWork(t *testing.T) {
	gen := testutil.NewWorkflowGenerator()
	machine, _, _ := newTestMachine(t, gen)

	sess, err := machine.Run(context.Background(), testutil.NewSession())
	require.NoError(t, err)
	lesson := sess.LessonMarkdown

	// Evaluation fails mid-cycle.
	gen.Error = fmt.Errorf("generator down")
	sess.Submission = "code"
	sess, err = machine.Run(context.Background(), sess)
	require.Error(t, err)
	require.Equal(t, stages.StageEvaluate, sess.Err.Stage)

	gen.Error = nil
	lessonCallsBefore := len(gen.PromptsMatching(testutil.LessonMarker))
	sess, err = machine.Retry(context.Background(), sess)

	require.NoError(t, err)
	assert.Equal(t, session.StatusPassed, sess.Status)
	assert.Equal(t, lesson, sess.LessonMarkdown)
	assert.Equal(t, lessonCallsBefore, len(gen.PromptsMatching(testutil.LessonMarker)), "retry must not regenerate the lesson")
}

func TestRunHonorsContextCancellation(t *testing.T) {
	machine, _, _ := newTestMachine(t, testutil.NewWorkflowGenerator())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := machine.Run(ctx, testutil.NewSession())

	assert.ErrorIs(t, err, context.Canceled)
}
