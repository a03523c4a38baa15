package stages

import (
	"fmt"
	"strings"

	"github.com/adaptive-learning-os/challengecore/coreengine/session"
)

// Prompt construction for the four stages. Each builder is a pure function of
// the session so re-running a stage with unchanged inputs yields an identical
// prompt.

func challengeTitle(sess *session.Session) string {
	if v, ok := sess.ChallengeData["title"].(string); ok {
		return v
	}
	return fmt.Sprintf("Challenge %d.%d", sess.ModuleNumber, sess.ChallengeNumber)
}

func challengeObjective(sess *session.Session) string {
	if v, ok := sess.ChallengeData["learning_objective"].(string); ok {
		return v
	}
	return ""
}

func challengeDescription(sess *session.Session) string {
	if v, ok := sess.ChallengeData["description"].(string); ok {
		return v
	}
	return ""
}

func lessonPrompt(sess *session.Session) string {
	return fmt.Sprintf(`You are an expert technical instructor. Your task is to create a personalized lesson for a %s student.

CURRENT CHALLENGE:
- Title: %s
- Objective: %s
- Description: %s

IMPORTANT RULES:
1. Teach ONLY what is needed for this challenge.
2. Avoid depth or complexity beyond the student's level.
3. Do NOT introduce concepts beyond the stated objective.

LESSON STRUCTURE (Output in pure markdown):

# %s

## Introduction
[1-2 paragraphs - Explain what this challenge is about and why it matters.]

## The Core Idea
[1-2 paragraphs - Connect it to real-world applications with one clear analogy or model.]

## Core Concepts
[Break the main topic into its most important sub-concepts. Explain the "what" and "why" of each.]

## Worked Example
[One concrete, complete example demonstrating the concept at the student's level.]

## Summary
[Short recap of the key points the student must retain for the challenge.]

Write the lesson now:`,
		sess.ExperienceLevel,
		challengeTitle(sess),
		challengeObjective(sess),
		challengeDescription(sess),
		challengeTitle(sess),
	)
}

func challengePrompt(sess *session.Session) string {
	return fmt.Sprintf(`You are a pedagogical expert creating a learning challenge based on a technical lesson.
Your job is to transform a lesson into ONE high-quality assessment challenge that tests understanding through active recall, application, and real-world scenario transfer.

## LESSON CONTENT:
%s

## CHALLENGE CONTEXT:
Learning Objective: %s
Description: %s
Student Level: %s
Learning Goal Type: %s

# YOUR TASK
Analyze the lesson and create ONE specific, testable challenge that effectively assesses understanding of the learning objective.

The challenge must:
1. Require active recall (no copy/paste from the lesson).
2. Require application to a NEW scenario, not a mutation of the lesson example.
3. Be real-world, practical, and level-appropriate.
4. Be non-trivial, requiring reasoning or construction.
5. Stay tightly aligned with the specific learning objective, not the entire lesson.
6. Remain strictly within the learner's current conceptual scope. Do NOT introduce tools, workflows, architectures, or multi-component systems that were NOT taught in the lesson.

# CRITICAL DECISION: CHALLENGE FORMAT
Choose the format that BEST tests THIS learning objective:

"code" challenge: for implementing or constructing something using syntax, logic, or configuration. Provide just enough scaffolding (function signatures, imports, TODO markers) but never leak the solution. For configuration challenges, provide ONLY a filename comment and TODO lines, never keys, nesting, or placeholder values.

"conceptual" challenge: for understanding, reasoning, debugging, or analysis. Must be scenario-driven with 2-3 focused aspects; avoid broad open-ended prompts.

# OUTPUT FORMAT (STRICT)
Return ONLY valid JSON. Escape all quotes and newlines.

{
  "challenge_format": "code" OR "conceptual",
  "challenge_prompt": "Clear description of what the student must do",
  "starter_code": "Scaffold ONLY if code challenge; null for conceptual",
  "expected_approach": "Thinking steps WITHOUT listing syntax, keys, or full logic",
  "success_criteria": [
    "Specific requirement 1",
    "Specific requirement 2",
    "Specific requirement 3"
  ],
  "hints_bank": [
    "Level 1 hint: General nudge",
    "Level 2 hint: More targeted direction",
    "Level 3 hint: Nearly gives the answer"
  ]
}

# FINAL SELF-CHECK BEFORE RETURNING JSON
1. The challenge is aligned with the learning objective AND remains within lesson scope.
2. The scenario is NEW and not a mutation of the lesson example.
3. If challenge_format = "conceptual": starter_code = null.
4. expected_approach does NOT reveal specific syntax, keys, or the solution.
5. success_criteria refer ONLY to observable aspects of the student's answer.

Generate the challenge now:`,
		sess.LessonMarkdown,
		challengeObjective(sess),
		challengeDescription(sess),
		sess.ExperienceLevel,
		sess.LearningGoalType,
	)
}

func evaluationPrompt(sess *session.Session) string {
	spec := sess.Challenge
	criteria := make([]string, 0, len(spec.SuccessCriteria))
	for _, c := range spec.SuccessCriteria {
		criteria = append(criteria, "- "+c)
	}

	return fmt.Sprintf(`You are an expert technical evaluator assessing a student's submission.

CHALLENGE DETAILS:
Format: %s
Prompt: %s

SUCCESS CRITERIA:
%s

EXPECTED APPROACH:
%s

STUDENT'S SUBMISSION:
%s

YOUR TASK:
Evaluate the submission WITHOUT executing code. Use your reasoning to assess correctness.

EVALUATION CRITERIA:
1. Correctness - Does it meet all success criteria?
2. Code Quality (if code) - Proper syntax, structure, best practices?
3. Completeness - Are all requirements addressed?

EVALUATION GUIDELINES:

For CODE challenges:
- Analyze logic, check imports, verify approach matches expected solution.
- Look for syntax errors, logic flaws, missing components.
- Be specific: point to exact lines or sections with issues.

For CONCEPTUAL challenges:
- Accept MULTIPLE valid explanations; there's rarely one right answer.
- Check if core concepts are understood, even if the explanation differs from the expected approach.
- Focus on whether they demonstrate understanding, not whether they used exact wording.

General Guidelines:
- Be constructive: identify what works AND what doesn't.
- Consider %s level (be appropriately lenient/strict).
- For Beginners: more lenient, focus on core understanding.
- For Advanced: expect nuanced explanations, edge cases, production concerns.

OUTPUT FORMAT:
Return ONLY a JSON object:

{
  "passed": true/false,
  "score": 0-100,
  "errors": ["Specific issue 1", "Specific issue 2"],
  "feedback": "Overall assessment paragraph explaining what's right and what's wrong",
  "what_worked": ["Positive aspect 1", "Positive aspect 2"],
  "what_needs_work": ["Issue 1 with location", "Issue 2 with location"]
}

IMPORTANT:
- If submission fully meets all success criteria: passed: true.
- If missing any critical requirement: passed: false.
- Be specific in errors (e.g., "Missing StrOutputParser import" not "Missing import").
- Always include at least one "what_worked" (encourage learning).

Evaluate the submission now:`,
		spec.Format,
		spec.Prompt,
		strings.Join(criteria, "\n"),
		spec.ExpectedApproach,
		sess.Submission,
		sess.ExperienceLevel,
	)
}

func remediationPrompt(sess *session.Session, hintLevel int) string {
	spec := sess.Challenge
	eval := sess.Evaluation

	hints := make([]string, 0, len(spec.HintsBank))
	for i, hint := range spec.HintsBank {
		hints = append(hints, fmt.Sprintf("Level %d: %s", i+1, hint))
	}

	// The submission being remediated is the most recent history entry; the
	// working submission slot was already consumed by the evaluation.
	submission := sess.Submission
	if submission == "" && len(sess.History) > 0 {
		submission = sess.History[len(sess.History)-1].Submission
	}

	return fmt.Sprintf(`You are a supportive coding tutor providing remediation after a failed submission.

CHALLENGE:
%s

STUDENT'S SUBMISSION:
%s

EVALUATION RESULTS:
Passed: %t
Score: %d/100
Errors: %s
What Needs Work: %s

ATTEMPT COUNT: %d
HINT LEVEL: %d/3

HINTS BANK (for guidance):
%s

YOUR TASK:
Provide targeted remediation at Level %d specificity:
- Level 1: General direction, encourage thinking.
- Level 2: Point to specific issue or missing element.
- Level 3: Nearly give the solution (but don't write it for them).

REMEDIATION PRINCIPLES:
1. Be encouraging (they're learning!)
2. Build on what they got right.
3. Guide, don't solve.
4. Progressive disclosure (respect hint level).

OUTPUT FORMAT:
Return ONLY a JSON object:

{
  "hint_level": %d,
  "targeted_hint": "Specific hint at level %d that addresses the main error",
  "encouragement": "Positive, motivating message about what they got right",
  "key_concept_reminder": "Brief reminder of the lesson concept they need to apply"
}

Generate remediation now:`,
		spec.Prompt,
		submission,
		eval.Passed,
		eval.Score,
		strings.Join(eval.Errors, ", "),
		strings.Join(eval.WhatNeedsWork, ", "),
		sess.AttemptCount,
		hintLevel,
		strings.Join(hints, "\n"),
		hintLevel,
		hintLevel,
		hintLevel,
	)
}
