// Package retry provides the single retry policy applied to every remote
// call in this service. Call sites differ only in attempt counts and backoff
// bounds, never in mechanics.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Policy configures exponential backoff retries.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	MinDelay    time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff cap
	Retryable   func(error) bool
}

// Do runs fn until it succeeds, a non-retryable error occurs, attempts are
// exhausted, or ctx is canceled. It returns the number of retries performed
// (0 when the first attempt succeeds) and the final error, wrapped with the
// attempt count on exhaustion.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.MinDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, fmt.Errorf("canceled before attempt %d: %w", attempt+1, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return attempt, lastErr
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("canceled during backoff: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, p.MaxDelay)
		}
	}

	return attempts - 1, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// transientPatterns groups error substrings that mark a failure as
// retryable; matched case-insensitively. Provider SDKs do not expose typed
// errors for transient failures, so substring matching is the pragmatic
// fallback.
var transientPatterns = []string{
	"rate limit", "quota", "429",
	"500", "502", "503", "504", "unavailable",
	"connection reset", "connection refused", "timeout", "temporary", "eof",
}

// Transient reports whether err looks like a transient remote failure.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
