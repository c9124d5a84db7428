// Package resilience provides resilient execution patterns using fortify.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/omni/domain/tool"
)

// ErrToolPanicked indicates a tool handler panicked.
var ErrToolPanicked = errors.New("tool panicked")

// TimeoutError reports a tool that ran past its deadline.
type TimeoutError struct {
	Tool  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool '%s' timed out after %s", e.Tool, e.After)
}

// Unwrap allows errors.Is(err, tool.ErrExecutionTimeout).
func (e *TimeoutError) Unwrap() error {
	return tool.ErrExecutionTimeout
}

// handlerError carries an error returned by a tool handler through retry.
type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Executor runs tools one at a time with a deadline, a per-tool circuit
// breaker and retry for idempotent tools.
//
// Composition order: Bulkhead → Circuit Breaker → Retry → Timeout → Handler.
type Executor struct {
	config   ExecutorConfig
	bulkhead bulkhead.Bulkhead[tool.Result]
	retry    retry.Retry[tool.Result]

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[tool.Result]
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent tool executions.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive timeouts or
	// panics before a tool's circuit opens (0 disables the breaker).
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for retryable tools.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout bounds a tool without its own timeout annotation.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns the default configuration. Tools run
// sequentially.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           1,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          60 * time.Second,
	}
}

// NewExecutor creates a new resilient executor.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	if config.CircuitBreakerThreshold < 0 {
		config.CircuitBreakerThreshold = 0
	}
	if config.RetryMaxAttempts <= 0 {
		config.RetryMaxAttempts = 1
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultExecutorConfig().DefaultTimeout
	}

	return &Executor{
		config: config,
		bulkhead: bulkhead.New[tool.Result](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		}),
		retry: retry.New[tool.Result](retry.Config{
			MaxAttempts:   config.RetryMaxAttempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryBackoffMultiplier,
			NonRetryableErrors: []error{
				tool.ErrExecutionTimeout,
				ErrToolPanicked,
				context.Canceled,
				context.DeadlineExceeded,
			},
		}),
		breakers: make(map[string]circuitbreaker.CircuitBreaker[tool.Result]),
	}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

// TimeoutFor returns the deadline applied to one attempt of t.
func (e *Executor) TimeoutFor(t tool.Tool) time.Duration {
	if d := t.Annotations().Timeout; d > 0 {
		return d
	}
	return e.config.DefaultTimeout
}

// Execute runs a tool with resilience patterns applied.
//
// An error returned by the handler becomes a failure result with a nil
// error. The returned error is non-nil only for a timeout, a panic, an open
// circuit or a cancelled context.
func (e *Executor) Execute(ctx context.Context, t tool.Tool, input json.RawMessage) (tool.Result, error) {
	start := time.Now()
	timeout := e.TimeoutFor(t)

	attempt := func(ctx context.Context) (tool.Result, error) {
		return runGuarded(ctx, t, input, timeout)
	}

	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (tool.Result, error) {
		return e.guard(ctx, t.Name(), func(ctx context.Context) (tool.Result, error) {
			var res tool.Result
			var err error
			if t.Annotations().CanRetry() {
				res, err = e.retry.Do(ctx, attempt)
			} else {
				res, err = attempt(ctx)
			}

			var he *handlerError
			if errors.As(err, &he) {
				return tool.Failure(he.Error()), nil
			}
			return res, err
		})
	})
	if err != nil {
		return tool.Result{}, e.describe(ctx, t.Name(), err)
	}

	return result.WithDuration(time.Since(start)), nil
}

// guard runs fn through the tool's circuit breaker when one is configured.
func (e *Executor) guard(ctx context.Context, name string, fn func(context.Context) (tool.Result, error)) (tool.Result, error) {
	cb := e.breakerFor(name)
	if cb == nil {
		return fn(ctx)
	}
	return cb.Execute(ctx, fn)
}

func (e *Executor) breakerFor(name string) circuitbreaker.CircuitBreaker[tool.Result] {
	if e.config.CircuitBreakerThreshold == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[name]; ok {
		return cb
	}
	threshold := uint32(e.config.CircuitBreakerThreshold) // #nosec G115 -- non-negative, checked in NewExecutor
	cb := circuitbreaker.New[tool.Result](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    e.config.CircuitBreakerTimeout,
		Timeout:     e.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	e.breakers[name] = cb
	return cb
}

// describe gives infrastructure errors a message naming the tool.
func (e *Executor) describe(ctx context.Context, name string, err error) error {
	var te *TimeoutError
	switch {
	case errors.As(err, &te), errors.Is(err, ErrToolPanicked):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("tool '%s' cancelled: %w", name, ctx.Err())
	default:
		return fmt.Errorf("tool '%s' unavailable: %w", name, err)
	}
}

// CircuitBreakerState returns the breaker state name of one tool. A tool
// that never ran reports "closed".
func (e *Executor) CircuitBreakerState(name string) string {
	e.mu.Lock()
	cb, ok := e.breakers[name]
	e.mu.Unlock()
	if !ok {
		return "closed"
	}
	return cb.State().String()
}

type outcome struct {
	result tool.Result
	err    error
}

// runGuarded runs one attempt under its own deadline. The handler runs in a
// goroutine so a handler that ignores its context cannot block the loop.
func runGuarded(ctx context.Context, t tool.Tool, input json.RawMessage, timeout time.Duration) (tool.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: tool '%s': %v", ErrToolPanicked, t.Name(), r)}
			}
		}()
		res, err := t.Execute(attemptCtx, input)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, ErrToolPanicked) {
				return tool.Result{}, out.err
			}
			if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return tool.Result{}, &TimeoutError{Tool: t.Name(), After: timeout}
			}
			return tool.Result{}, &handlerError{err: out.err}
		}
		return out.result, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return tool.Result{}, ctx.Err()
		}
		return tool.Result{}, &TimeoutError{Tool: t.Name(), After: timeout}
	}
}
