// Package policy provides the attempt-driven remediation policy.
//
// The policy is a pure function of the attempt counter so it can be unit
// tested independently of any stage or external call.
package policy

// MaxHintLevel is the saturation point for hint specificity. Level 3 nearly
// gives the answer but never the literal solution; there is deliberately no
// escalation beyond it.
const MaxHintLevel = 3

// HintLevel maps an attempt count to a hint specificity tier.
//
// Level 1 = general direction, level 2 = points to a specific missing
// element, level 3 = near-complete guidance. Total and monotonic:
// attempt 1 -> 1, attempt 2 -> 2, attempt 3 or more -> 3.
func HintLevel(attemptCount int) int {
	if attemptCount < 1 {
		return 1
	}
	if attemptCount > MaxHintLevel {
		return MaxHintLevel
	}
	return attemptCount
}

// RetryAllowed reports whether another attempt may be made after a failure.
// Remediation is offered indefinitely - no maximum attempt count is enforced.
func RetryAllowed(attemptCount int) bool {
	return true
}
