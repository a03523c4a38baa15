// Package structured wraps external text generation behind a single
// document-extraction contract.
//
// Generators return free-form text with an embedded JSON document, usually
// inside markdown fencing. Decode strips the fencing, locates the document,
// and applies one bounded syntactic repair before giving up. Retry policy for
// the generator call itself belongs to the caller (see InvokeWithRetry).
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Generator is the interface for the external text generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// trailingCommas matches a trailing separator before a closing delimiter.
// Removing it is idempotent, so the repair can be applied at most once.
var trailingCommas = regexp.MustCompile(`,(\s*[}\]])`)

// Adapter couples a generator with document extraction.
type Adapter struct {
	Generator Generator
}

// NewAdapter creates an Adapter around the given generator.
func NewAdapter(gen Generator) *Adapter {
	return &Adapter{Generator: gen}
}

// Invoke makes exactly one generator call and decodes the embedded document.
// Generator failures surface as *TransientCallError; undecodable output as
// *MalformedOutputError. No partial documents are returned.
func (a *Adapter) Invoke(ctx context.Context, op, prompt string) (map[string]any, error) {
	text, err := a.Generator.Generate(ctx, prompt)
	if err != nil {
		return nil, NewTransientCallError(op, err)
	}
	return Decode(text)
}

// InvokeText makes exactly one generator call and returns the raw text.
// Used for stages whose output is prose rather than a JSON document.
func (a *Adapter) InvokeText(ctx context.Context, op, prompt string) (string, error) {
	text, err := a.Generator.Generate(ctx, prompt)
	if err != nil {
		return "", NewTransientCallError(op, err)
	}
	return strings.TrimSpace(text), nil
}

// Decode extracts and parses the JSON document embedded in generator text.
//
// Decode order: strip markdown fencing, attempt a direct parse, then a
// brace-scan for an embedded object. On failure the trailing-separator
// repair is applied and decoding retried exactly once.
func Decode(text string) (map[string]any, error) {
	candidate := stripFencing(text)

	doc, err := parseJSONObject(candidate)
	if err == nil {
		return doc, nil
	}

	repaired := trailingCommas.ReplaceAllString(candidate, "$1")
	if doc, retryErr := parseJSONObject(repaired); retryErr == nil {
		return doc, nil
	}

	// The original diagnostic is the useful one for logging.
	return nil, NewMalformedOutputError(text, err)
}

// stripFencing removes markdown code fencing and surrounding prose.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return text
}

// parseJSONObject parses text as a JSON object, falling back to a brace scan
// for an object embedded in surrounding prose.
func parseJSONObject(text string) (map[string]any, error) {
	var result map[string]any
	err := json.Unmarshal([]byte(text), &result)
	if err == nil {
		return result, nil
	}

	start := -1
	braceCount := 0
	for i, c := range text {
		if c == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
		} else if c == '}' {
			braceCount--
			if braceCount == 0 && start != -1 {
				candidate := text[start : i+1]
				if innerErr := json.Unmarshal([]byte(candidate), &result); innerErr == nil {
					return result, nil
				}
			}
		}
	}

	return nil, err
}

// RetryConfig parameterizes InvokeWithRetry.
type RetryConfig struct {
	// MaxAttempts bounds the total number of generator calls.
	MaxAttempts uint64
	// BaseDelay is the initial backoff interval between attempts.
	BaseDelay time.Duration
}

// DefaultRetryConfig matches the bounded retry the workflow applies at every
// generator call site.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// InvokeWithRetry applies exponential backoff to transient generator
// failures. Malformed output is permanent: content-quality failures are not
// fixed by calling again with the same prompt, so they surface immediately.
// The notify callback, if non-nil, observes each transient failure.
func (a *Adapter) InvokeWithRetry(ctx context.Context, op, prompt string, cfg RetryConfig, notify func(err error, next time.Duration)) (map[string]any, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay

	var doc map[string]any
	operation := func() error {
		var err error
		doc, err = a.Invoke(ctx, op, prompt)
		if err == nil {
			return nil
		}
		var malformed *MalformedOutputError
		if errors.As(err, &malformed) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxAttempts-1), ctx)
	var err error
	if notify != nil {
		err = backoff.RetryNotify(operation, policy, notify)
	} else {
		err = backoff.Retry(operation, policy)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// InvokeTextWithRetry is InvokeText under the same backoff policy as
// InvokeWithRetry. All failures of a raw text call are transient.
func (a *Adapter) InvokeTextWithRetry(ctx context.Context, op, prompt string, cfg RetryConfig, notify func(err error, next time.Duration)) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay

	var text string
	operation := func() error {
		var err error
		text, err = a.InvokeText(ctx, op, prompt)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxAttempts-1), ctx)
	var err error
	if notify != nil {
		err = backoff.RetryNotify(operation, policy, notify)
	} else {
		err = backoff.Retry(operation, policy)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}
