package fetch

import (
	"context"
	"errors"
	"fmt"

	"webresearch/internal/browser"
	"webresearch/internal/retry"
)

// ValidationError rejects input before any work is done. Never retried.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.URL, e.Reason)
}

// TransientError wraps a navigation, network or timeout failure. Retried.
type TransientError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetch %s (attempt %d): %v", e.URL, e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRetryable classifies errors for the retry policy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	switch {
	case errors.Is(err, retry.ErrNonRetryable),
		errors.Is(err, browser.ErrPoolClosed),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
