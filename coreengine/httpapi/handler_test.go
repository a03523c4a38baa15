package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptive-learning-os/challengecore/coreengine/checkpoint"
	"github.com/adaptive-learning-os/challengecore/coreengine/controller"
	"github.com/adaptive-learning-os/challengecore/coreengine/httpapi"
	"github.com/adaptive-learning-os/challengecore/coreengine/progress"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
	"github.com/adaptive-learning-os/challengecore/coreengine/testutil"
	"github.com/adaptive-learning-os/challengecore/coreengine/workflow"
)

type testAPI struct {
	server *httptest.Server
	gen    *testutil.MockGenerator
	repo   progress.Repository
}

func newTestAPI(t *testing.T, gen *testutil.MockGenerator) *testAPI {
	t.Helper()

	repo, err := progress.NewSQLite(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	retry := structured.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
	adapter := structured.NewAdapter(gen)
	set := workflow.StageSet{
		Lesson:    stages.NewLessonStage(adapter, nil).WithRetry(retry),
		Challenge: stages.NewChallengeStage(adapter, nil).WithRetry(retry),
		Evaluate:  stages.NewEvaluateStage(adapter, nil).WithRetry(retry),
		Remediate: stages.NewRemediateStage(adapter, nil).WithRetry(retry),
	}
	machine, err := workflow.NewMachine(set, checkpoint.NewMemory(), nil, testutil.NewMockLogger())
	require.NoError(t, err)

	ctrl := controller.New(machine, nil, testutil.NewMockLogger())
	handler := httpapi.NewHandler(ctrl, repo, testutil.NewMockLogger())
	server := httptest.NewServer(httpapi.NewRouter(handler))
	t.Cleanup(server.Close)

	return &testAPI{server: server, gen: gen, repo: repo}
}

func (a *testAPI) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (a *testAPI) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(a.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (a *testAPI) setup(t *testing.T) {
	t.Helper()
	resp, _ := a.post(t, "/setup", map[string]any{
		"user_id":          "alice",
		"learning_goal":    "backend",
		"experience_level": "Intermediate",
		"modules":          []map[string]any{{"module_number": 1, "num_challenges": 2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// HEALTH AND SETUP
// =============================================================================

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, body := api.get(t, "/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestSetupValidation(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, _ := api.post(t, "/setup", map[string]any{"experience_level": "Intermediate"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.post(t, "/setup", map[string]any{"user_id": "alice", "experience_level": "Galactic"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetupCreatesProfileAndProgress(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())
	api.setup(t)

	resp, body := api.get(t, "/progress?user_id=alice")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total_challenges"])
	assert.Equal(t, float64(0), body["total_completed"])
}

// =============================================================================
// CHALLENGE LIFECYCLE
// =============================================================================

func TestGetChallengeGeneratesContent(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())
	api.setup(t)

	resp, body := api.get(t, "/challenge/1/1?user_id=alice")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_code", body["status"])
	assert.NotEmpty(t, body["lesson_markdown"])
	require.Contains(t, body, "coding_challenge")
	assert.Equal(t, 2, api.gen.GetCallCount())
}

func TestGetChallengeRequiresUser(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, _ := api.get(t, "/challenge/1/1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetChallengeRejectsBadPath(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, _ := api.get(t, "/challenge/0/1?user_id=alice")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetChallengeIsIdempotent(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())
	api.setup(t)

	_, first := api.get(t, "/challenge/1/1?user_id=alice")
	calls := api.gen.GetCallCount()
	_, second := api.get(t, "/challenge/1/1?user_id=alice")

	assert.Equal(t, first["lesson_markdown"], second["lesson_markdown"])
	assert.Equal(t, calls, api.gen.GetCallCount(), "revisiting must serve checkpointed content")
}

func TestSubmitPassCompletesAndUnlocks(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())
	api.setup(t)
	api.get(t, "/challenge/1/1?user_id=alice")

	resp, body := api.post(t, "/challenge/1/1/submit", map[string]any{
		"user_id": "alice",
		"code":    "func fanOut() {}",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "passed", body["status"])
	assert.Equal(t, float64(1), body["attempt_count"])

	// The pass is mirrored into long-lived progress and unlocks the next
	// challenge.
	_, progressBody := api.get(t, "/progress?user_id=alice")
	assert.Equal(t, float64(1), progressBody["total_completed"])

	next, err := api.repo.GetChallengeProgress(t.Context(), "alice", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusInProgress, next.Status)
}

func TestSubmitFailureReturnsHint(t *testing.T) {
	gen := testutil.NewWorkflowGenerator().
		WithResponse(testutil.EvaluationMarker, testutil.FailEvaluationResponse())
	api := newTestAPI(t, gen)
	api.setup(t)
	api.get(t, "/challenge/1/1?user_id=alice")

	resp, body := api.post(t, "/challenge/1/1/submit", map[string]any{
		"user_id": "alice",
		"code":    "broken",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_code", body["status"])
	require.Contains(t, body, "remediation")
	remediation := body["remediation"].(map[string]any)
	assert.Equal(t, float64(1), remediation["hint_level"])
}

func TestSubmitValidation(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, _ := api.post(t, "/challenge/1/1/submit", map[string]any{"code": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "user_id is required")

	resp, _ = api.post(t, "/challenge/1/1/submit", map[string]any{"user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "code is required")
}

func TestSubmitUnknownSession(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, _ := api.post(t, "/challenge/1/1/submit", map[string]any{
		"user_id": "ghost",
		"code":    "x",
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitAfterPassedRejected(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())
	api.setup(t)
	api.get(t, "/challenge/1/1?user_id=alice")
	resp, _ := api.post(t, "/challenge/1/1/submit", map[string]any{"user_id": "alice", "code": "pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.post(t, "/challenge/1/1/submit", map[string]any{"user_id": "alice", "code": "again"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "does not accept submissions")
}

func TestStageFailureReturnsSessionState(t *testing.T) {
	gen := testutil.NewMockGenerator().WithError(fmt.Errorf("generator down"))
	api := newTestAPI(t, gen)
	api.setup(t)

	resp, body := api.get(t, "/challenge/1/1?user_id=alice")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	require.Contains(t, body, "error")
	errInfo := body["error"].(map[string]any)
	assert.Equal(t, "create_lesson", errInfo["stage"])
}

// =============================================================================
// PROGRESS
// =============================================================================

func TestGetProgressRequiresUser(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, _ := api.get(t, "/progress")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpointExposed(t *testing.T) {
	api := newTestAPI(t, testutil.NewWorkflowGenerator())

	resp, err := http.Get(api.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
