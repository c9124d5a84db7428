package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ErrCallRateLimited indicates the caller's limiter refused a call.
var ErrCallRateLimited = errors.New("call rate limited")

// CallTimeoutError reports a model call that ran past its deadline.
type CallTimeoutError struct {
	Name  string
	After time.Duration
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Name, e.After)
}

// Unwrap allows errors.Is(err, context.DeadlineExceeded).
func (e *CallTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// CallerConfig configures a Caller.
type CallerConfig struct {
	// Name labels timeout errors, e.g. "planner".
	Name string
	// Timeout bounds the whole call including retries (0 = none).
	Timeout time.Duration
	// MaxAttempts includes the first attempt (1 = no retry).
	MaxAttempts int
	// InitialDelay is the first retry delay.
	InitialDelay time.Duration
	// Multiplier is the backoff multiplier.
	Multiplier float64
	// Rate limits calls per second (0 = unlimited).
	Rate int
	// Burst is the limiter bucket size.
	Burst int
	// NonRetryable lists errors that stop retrying immediately.
	NonRetryable []error
}

// Caller wraps blocking model calls with a deadline, retry with backoff
// and an optional rate limit.
type Caller struct {
	name    string
	timeout time.Duration
	retry   retry.Retry[string]
	limiter ratelimit.RateLimiter
}

// NewCaller creates a caller.
func NewCaller(cfg CallerConfig) *Caller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Name == "" {
		cfg.Name = "call"
	}

	c := &Caller{
		name:    cfg.Name,
		timeout: cfg.Timeout,
		retry: retry.New[string](retry.Config{
			MaxAttempts:        cfg.MaxAttempts,
			InitialDelay:       cfg.InitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         cfg.Multiplier,
			NonRetryableErrors: append([]error{context.Canceled, context.DeadlineExceeded, ErrCallRateLimited}, cfg.NonRetryable...),
		}),
	}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.Rate
		}
		c.limiter = ratelimit.New(&ratelimit.Config{Rate: cfg.Rate, Burst: burst})
	}
	return c
}

// Call runs fn under the caller's policies.
func (c *Caller) Call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if c.limiter != nil && !c.limiter.Allow(ctx, c.name) {
		return "", fmt.Errorf("%s: %w", c.name, ErrCallRateLimited)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.retry.Do(callCtx, fn)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", &CallTimeoutError{Name: c.name, After: c.timeout}
		}
		return "", err
	}
	return out, nil
}
