// Package httpapi provides the HTTP handlers for the challenge workflow API.
//
// The layer is deliberately thin: it translates HTTP requests into controller
// calls and controller errors into status codes. 404 for missing sessions or
// resources, 400 for precondition failures, 500 for stage errors.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/adaptive-learning-os/challengecore/coreengine/controller"
	"github.com/adaptive-learning-os/challengecore/coreengine/progress"
	"github.com/adaptive-learning-os/challengecore/coreengine/session"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
	"github.com/go-chi/chi/v5"
)

// Handler provides the API handlers and their dependencies.
type Handler struct {
	ctrl   *controller.Controller
	repo   progress.Repository
	logger stages.Logger
}

// NewHandler creates a new Handler.
func NewHandler(ctrl *controller.Controller, repo progress.Repository, logger stages.Logger) *Handler {
	return &Handler{ctrl: ctrl, repo: repo, logger: logger.Bind("component", "httpapi")}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Healthz reports service liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetupRequest is the body of POST /setup.
type SetupRequest struct {
	UserID          string `json:"user_id"`
	LearningGoal    string `json:"learning_goal"`
	ExperienceLevel string `json:"experience_level"`
	Modules         []struct {
		ModuleNumber  int `json:"module_number"`
		NumChallenges int `json:"num_challenges"`
	} `json:"modules,omitempty"`
}

// Setup creates or updates the learner profile and seeds module progress.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !session.ExperienceLevel(req.ExperienceLevel).Valid() {
		Error(w, http.StatusBadRequest, "invalid experience_level")
		return
	}

	ctx := r.Context()
	if err := h.repo.UpsertProfile(ctx, &progress.Profile{
		UserID:          req.UserID,
		LearningGoal:    req.LearningGoal,
		ExperienceLevel: req.ExperienceLevel,
	}); err != nil {
		h.logger.Error("setup_profile_error", "user_id", req.UserID, "error", err.Error())
		Error(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	for _, m := range req.Modules {
		if err := h.repo.InitModuleProgress(ctx, req.UserID, m.ModuleNumber, m.NumChallenges); err != nil {
			h.logger.Error("setup_progress_error", "user_id", req.UserID, "module", m.ModuleNumber, "error", err.Error())
			Error(w, http.StatusInternalServerError, "failed to initialize module progress")
			return
		}
	}

	JSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "status": "ready"})
}

// GetChallenge serves GET /challenge/{module}/{challenge}: the lesson,
// challenge spec, and progress for the addressed exercise. Content is served
// from the session checkpoint when it exists, generated otherwise.
func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		Error(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	moduleNumber, challengeNumber, ok := pathNumbers(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	level := session.LevelIntermediate
	goalType := "hybrid"
	if profile, err := h.repo.GetProfile(ctx, userID); err == nil && profile != nil {
		if l := session.ExperienceLevel(profile.ExperienceLevel); l.Valid() {
			level = l
		}
		if profile.LearningGoal != "" {
			goalType = profile.LearningGoal
		}
	}

	sess, err := h.ctrl.Start(ctx, controller.StartRequest{
		UserID:           userID,
		ModuleNumber:     moduleNumber,
		ChallengeNumber:  challengeNumber,
		ChallengeData:    h.challengeData(ctx, userID, moduleNumber, challengeNumber),
		ExperienceLevel:  level,
		LearningGoalType: goalType,
	})
	if err != nil {
		h.writeSessionError(w, sess, err)
		return
	}

	h.syncProgress(r, sess)
	JSON(w, http.StatusOK, sess.ToResultDict())
}

// SubmitRequest is the body of POST /challenge/{module}/{challenge}/submit.
type SubmitRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// SubmitChallenge serves the submission endpoint: injects the code, drives
// the workflow through evaluation, and returns the resulting state.
func (h *Handler) SubmitChallenge(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Code == "" {
		Error(w, http.StatusBadRequest, "code is required")
		return
	}
	moduleNumber, challengeNumber, ok := pathNumbers(w, r)
	if !ok {
		return
	}

	sessionID := session.ID(req.UserID, moduleNumber, challengeNumber)
	sess, err := h.ctrl.Submit(r.Context(), sessionID, req.Code)
	if err != nil {
		h.writeSessionError(w, sess, err)
		return
	}

	h.syncProgress(r, sess)
	JSON(w, http.StatusOK, sess.ToResultDict())
}

// GetProgress serves GET /progress: the aggregated completion summary.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		Error(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	summary, err := h.repo.GetSummary(r.Context(), userID)
	if err != nil {
		h.logger.Error("progress_summary_error", "user_id", userID, "error", err.Error())
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"modules":            summary.Modules,
		"total_challenges":   summary.TotalChallenges,
		"total_completed":    summary.TotalCompleted,
		"completion_percent": summary.CompletionPercent(),
	})
}

// challengeData extracts the challenge descriptor from the stored module
// roadmap. A missing or unparseable roadmap degrades to a nil descriptor;
// the stages synthesize sensible defaults.
func (h *Handler) challengeData(ctx context.Context, userID string, moduleNumber, challengeNumber int) map[string]any {
	roadmapJSON, err := h.repo.GetModuleRoadmap(ctx, userID, moduleNumber)
	if err != nil || roadmapJSON == "" {
		return nil
	}

	var roadmap struct {
		Challenges []map[string]any `json:"challenges"`
	}
	if err := json.Unmarshal([]byte(roadmapJSON), &roadmap); err != nil {
		h.logger.Warn("roadmap_parse_error", "user_id", userID, "module", moduleNumber, "error", err.Error())
		return nil
	}
	if challengeNumber > len(roadmap.Challenges) {
		return nil
	}
	return roadmap.Challenges[challengeNumber-1]
}

// syncProgress mirrors the session outcome into the long-lived progress
// records: cached content, attempt counter, and completion/unlock on pass.
// Failures here are logged, never surfaced; the session state is the source
// of truth.
func (h *Handler) syncProgress(r *http.Request, sess *session.Session) {
	ctx := r.Context()

	if sess.HasContent() {
		specJSON, err := json.Marshal(sess.Challenge)
		if err == nil {
			if err := h.repo.CacheContent(ctx, sess.UserID, sess.ModuleNumber, sess.ChallengeNumber, sess.LessonMarkdown, string(specJSON)); err != nil {
				h.logger.Warn("progress_cache_error", "session_id", sess.SessionID, "error", err.Error())
			}
		}
	}

	if sess.AttemptCount > 0 {
		if err := h.repo.RecordAttempt(ctx, sess.UserID, sess.ModuleNumber, sess.ChallengeNumber, sess.AttemptCount); err != nil {
			h.logger.Warn("progress_attempt_error", "session_id", sess.SessionID, "error", err.Error())
		}
	}

	if sess.Status == session.StatusPassed {
		if err := h.repo.CompleteChallenge(ctx, sess.UserID, sess.ModuleNumber, sess.ChallengeNumber); err != nil {
			h.logger.Warn("progress_complete_error", "session_id", sess.SessionID, "error", err.Error())
		}
		if err := h.repo.UnlockNextChallenge(ctx, sess.UserID, sess.ModuleNumber, sess.ChallengeNumber); err != nil {
			h.logger.Warn("progress_unlock_error", "session_id", sess.SessionID, "error", err.Error())
		}
	}
}

// writeSessionError maps controller errors onto status codes. When a stage
// failed the session carries the error slot, so the body includes the state
// the client can retry from.
func (h *Handler) writeSessionError(w http.ResponseWriter, sess *session.Session, err error) {
	var precondition *controller.PreconditionError
	switch {
	case errors.Is(err, controller.ErrSessionNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.As(err, &precondition):
		Error(w, http.StatusBadRequest, precondition.Error())
	default:
		if sess != nil && sess.Status == session.StatusError {
			JSON(w, http.StatusInternalServerError, sess.ToResultDict())
			return
		}
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

func pathNumbers(w http.ResponseWriter, r *http.Request) (moduleNumber, challengeNumber int, ok bool) {
	moduleNumber, err1 := strconv.Atoi(chi.URLParam(r, "module"))
	challengeNumber, err2 := strconv.Atoi(chi.URLParam(r, "challenge"))
	if err1 != nil || err2 != nil || moduleNumber < 1 || challengeNumber < 1 {
		Error(w, http.StatusBadRequest, "module and challenge must be positive integers")
		return 0, 0, false
	}
	return moduleNumber, challengeNumber, true
}
