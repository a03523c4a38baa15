package session

import (
	"time"
)

// =============================================================================
// Serialization - State Dict Round-Trip for Checkpointing
// =============================================================================

// ToStateDict converts the session to a state dict for persistence.
func (s *Session) ToStateDict() map[string]any {
	state := map[string]any{
		"session_id":         s.SessionID,
		"user_id":            s.UserID,
		"module_number":      s.ModuleNumber,
		"challenge_number":   s.ChallengeNumber,
		"challenge_data":     s.ChallengeData,
		"experience_level":   string(s.ExperienceLevel),
		"learning_goal_type": s.LearningGoalType,
		"lesson_markdown":    s.LessonMarkdown,
		"user_code":          s.Submission,
		"attempt_count":      s.AttemptCount,
		"max_attempts":       s.MaxAttempts,
		"status":             string(s.Status),
		"started_at":         s.StartedAt.Format(time.RFC3339Nano),
		"metadata":           s.Metadata,
	}

	if s.Challenge != nil {
		state["coding_challenge"] = map[string]any{
			"challenge_format":  s.Challenge.Format,
			"challenge_prompt":  s.Challenge.Prompt,
			"starter_code":      s.Challenge.StarterCode,
			"expected_approach": s.Challenge.ExpectedApproach,
			"success_criteria":  toAnySlice(s.Challenge.SuccessCriteria),
			"hints_bank":        toAnySlice(s.Challenge.HintsBank),
		}
	}
	if s.Evaluation != nil {
		state["evaluation"] = evaluationToDict(*s.Evaluation)
	}
	if s.Remediation != nil {
		state["remediation"] = map[string]any{
			"hint_level":           s.Remediation.HintLevel,
			"targeted_hint":        s.Remediation.TargetedHint,
			"encouragement":        s.Remediation.Encouragement,
			"key_concept_reminder": s.Remediation.KeyConceptReminder,
		}
	}
	if s.Err != nil {
		state["error"] = map[string]any{
			"stage":   s.Err.Stage,
			"message": s.Err.Message,
		}
	}
	if s.CompletedAt != nil {
		state["completed_at"] = s.CompletedAt.Format(time.RFC3339Nano)
	}

	history := make([]any, len(s.History))
	for i, rec := range s.History {
		history[i] = map[string]any{
			"attempt":    rec.Attempt,
			"submission": rec.Submission,
			"evaluation": evaluationToDict(rec.Evaluation),
			"timestamp":  rec.Timestamp.Format(time.RFC3339Nano),
		}
	}
	state["submission_history"] = history

	return state
}

func evaluationToDict(e Evaluation) map[string]any {
	return map[string]any{
		"passed":          e.Passed,
		"score":           e.Score,
		"errors":          toAnySlice(e.Errors),
		"feedback":        e.Feedback,
		"what_worked":     toAnySlice(e.WhatWorked),
		"what_needs_work": toAnySlice(e.WhatNeedsWork),
	}
}

// FromStateDict reconstructs a session from a persisted state dict.
//
// Tolerant of JSON unmarshaling types: numbers arrive as float64 and slices
// as []any after a round-trip through the checkpoint store.
func FromStateDict(state map[string]any) *Session {
	s := &Session{
		History:  []SubmissionRecord{},
		Metadata: make(map[string]any),
	}

	s.SessionID = asString(state["session_id"])
	s.UserID = asString(state["user_id"])
	s.ModuleNumber = asInt(state["module_number"])
	s.ChallengeNumber = asInt(state["challenge_number"])
	if v, ok := state["challenge_data"].(map[string]any); ok {
		s.ChallengeData = v
	}
	s.ExperienceLevel = ExperienceLevel(asString(state["experience_level"]))
	s.LearningGoalType = asString(state["learning_goal_type"])
	s.LessonMarkdown = asString(state["lesson_markdown"])
	s.Submission = asString(state["user_code"])
	s.AttemptCount = asInt(state["attempt_count"])
	s.MaxAttempts = asInt(state["max_attempts"])
	s.Status = Status(asString(state["status"]))

	if v, ok := state["coding_challenge"].(map[string]any); ok {
		s.Challenge = &ChallengeSpec{
			Format:           asString(v["challenge_format"]),
			Prompt:           asString(v["challenge_prompt"]),
			StarterCode:      asString(v["starter_code"]),
			ExpectedApproach: asString(v["expected_approach"]),
			SuccessCriteria:  asStringSlice(v["success_criteria"]),
			HintsBank:        asStringSlice(v["hints_bank"]),
		}
	}
	if v, ok := state["evaluation"].(map[string]any); ok {
		eval := evaluationFromDict(v)
		s.Evaluation = &eval
	}
	if v, ok := state["remediation"].(map[string]any); ok {
		s.Remediation = &Remediation{
			HintLevel:          asInt(v["hint_level"]),
			TargetedHint:       asString(v["targeted_hint"]),
			Encouragement:      asString(v["encouragement"]),
			KeyConceptReminder: asString(v["key_concept_reminder"]),
		}
	}
	if v, ok := state["error"].(map[string]any); ok {
		s.Err = &StageError{
			Stage:   asString(v["stage"]),
			Message: asString(v["message"]),
		}
	}
	if t, ok := asTime(state["started_at"]); ok {
		s.StartedAt = t
	}
	if t, ok := asTime(state["completed_at"]); ok {
		s.CompletedAt = &t
	}
	if v, ok := state["metadata"].(map[string]any); ok {
		s.Metadata = v
	}

	if v, ok := state["submission_history"].([]any); ok {
		s.History = make([]SubmissionRecord, 0, len(v))
		for _, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			entry := SubmissionRecord{
				Attempt:    asInt(rec["attempt"]),
				Submission: asString(rec["submission"]),
			}
			if e, ok := rec["evaluation"].(map[string]any); ok {
				entry.Evaluation = evaluationFromDict(e)
			}
			if t, ok := asTime(rec["timestamp"]); ok {
				entry.Timestamp = t
			}
			s.History = append(s.History, entry)
		}
	}

	return s
}

func evaluationFromDict(v map[string]any) Evaluation {
	passed, _ := v["passed"].(bool)
	return Evaluation{
		Passed:        passed,
		Score:         asInt(v["score"]),
		Errors:        asStringSlice(v["errors"]),
		Feedback:      asString(v["feedback"]),
		WhatWorked:    asStringSlice(v["what_worked"]),
		WhatNeedsWork: asStringSlice(v["what_needs_work"]),
	}
}

// =============================================================================
// Tolerant Decoding Helpers
// =============================================================================

func toAnySlice(s []string) []any {
	result := make([]any, len(s))
	for i, v := range s {
		result[i] = v
	}
	return result
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return copyStringSlice(s)
	case []any:
		result := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return nil
}

func asTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
