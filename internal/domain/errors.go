package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrFilingNotFound signals a missing filing record.
	ErrFilingNotFound = errors.New("filing not found")
	// ErrInvalidPayload signals a stage-boundary payload that failed validation.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrExtractionInvalid signals extraction output that failed schema validation.
	ErrExtractionInvalid = errors.New("extraction output failed validation")
	// ErrReplayDenied signals a replay request for a record not in DEAD_LETTER.
	ErrReplayDenied = errors.New("replay denied")
	// ErrProviderError signals a document provider failure.
	ErrProviderError = errors.New("document provider error")
	// ErrModelError signals an extraction/generation/embedding provider failure.
	ErrModelError = errors.New("model provider error")
	// ErrRateLimited signals a rate limit hit at the provider.
	ErrRateLimited = errors.New("rate limited")
)

// InvalidTransitionError reports a state transition outside the transition table.
type InvalidTransitionError struct {
	SourceKey string
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for %s", e.From, e.To, e.SourceKey)
}

// ErrInvalidTransition is the sentinel all InvalidTransitionError values unwrap to.
var ErrInvalidTransition = errors.New("invalid status transition")

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
