// Package retry decides whether a failed operation should be attempted again
// and how long to wait first. Backoff is exponential: base * 2^attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"webresearch/internal/logging"
)

// ErrNonRetryable marks an error the policy must not retry.
var ErrNonRetryable = errors.New("non-retryable")

// ErrMaxAttemptsExceeded indicates all attempts failed.
var ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")

// Decision is the outcome of consulting a Policy.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy is a pure decision function. attempt counts completed attempts
// starting at 1 for the first failure.
type Policy interface {
	ShouldRetry(attempt int, err error) Decision
}

// Classifier reports whether an error may be retried.
type Classifier func(err error) bool

// Config configures exponential backoff.
type Config struct {
	MaxAttempts int           // Total attempts including the first one
	BaseDelay   time.Duration // Delay after the first failure
	MaxDelay    time.Duration // Zero means uncapped
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// Exponential is the baseline policy: every error is retryable up to
// MaxAttempts unless the classifier says otherwise.
type Exponential struct {
	cfg       Config
	retryable Classifier
}

// Option configures an Exponential policy.
type Option func(*Exponential)

// WithClassifier installs an error classifier. Errors for which it returns
// false fail fast.
func WithClassifier(c Classifier) Option {
	return func(p *Exponential) { p.retryable = c }
}

// NewExponential creates an exponential backoff policy.
func NewExponential(cfg Config, opts ...Option) *Exponential {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	p := &Exponential{cfg: cfg, retryable: defaultClassifier}
	for _, o := range opts {
		o(p)
	}
	return p
}

func defaultClassifier(err error) bool {
	return !errors.Is(err, ErrNonRetryable)
}

// ShouldRetry implements Policy. The delay after the n-th failure is
// base * 2^(n-1), so three attempts wait base then 2*base.
func (p *Exponential) ShouldRetry(attempt int, err error) Decision {
	if err == nil || attempt >= p.cfg.MaxAttempts {
		return Decision{}
	}
	if p.retryable != nil && !p.retryable(err) {
		return Decision{}
	}
	return Decision{Retry: true, Delay: Backoff(p.cfg, attempt-1)}
}

// MaxAttempts returns the configured attempt ceiling.
func (p *Exponential) MaxAttempts() int { return p.cfg.MaxAttempts }

// Backoff computes base * 2^n, capped at MaxDelay when set.
func Backoff(cfg Config, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(cfg.BaseDelay) * math.Pow(2, float64(n))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Permanent wraps err so the default classifier refuses to retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNonRetryable, err)
}

// Do runs fn until it succeeds, the policy gives up, or ctx is done.
// Attempts are logged under cat. The returned error wraps the last failure.
func Do(ctx context.Context, p Policy, cat logging.Category, operation string, fn func(ctx context.Context, attempt int) error) error {
	log := logging.Get(cat)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", operation, err, lastErr)
			}
			return fmt.Errorf("%s: %w", operation, err)
		}

		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				log.Debug("%s succeeded on attempt %d", operation, attempt)
			}
			return nil
		}
		lastErr = err

		d := p.ShouldRetry(attempt, err)
		if !d.Retry {
			if errors.Is(err, ErrNonRetryable) {
				return err
			}
			return fmt.Errorf("%w for %s after %d attempts: %w", ErrMaxAttemptsExceeded, operation, attempt, err)
		}

		log.Debug("attempt %d for %s failed: %v; retrying in %v", attempt, operation, err, d.Delay)

		timer := time.NewTimer(d.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", operation, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
}
