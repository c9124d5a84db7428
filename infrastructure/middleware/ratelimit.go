package middleware

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/policy"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// RateLimitScope defines the scope for rate limiting.
type RateLimitScope string

const (
	// ScopeGlobal applies one bucket to every call.
	ScopeGlobal RateLimitScope = "global"
	// ScopePerRun applies one bucket per run.
	ScopePerRun RateLimitScope = "per_run"
	// ScopePerTool applies one bucket per tool name.
	ScopePerTool RateLimitScope = "per_tool"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter overrides the token bucket built from Rate and Burst.
	Limiter ratelimit.RateLimiter
	// Scope determines how keys are generated. Default is ScopeGlobal.
	Scope RateLimitScope
	// Rate is the number of tokens added per second.
	Rate int
	// Burst is the bucket capacity.
	Burst int
	// FailOpen allows calls when the limiter itself fails.
	FailOpen bool
	// Metrics records refused calls.
	Metrics telemetry.Metrics
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Scope: ScopeGlobal,
		Rate:  10,
		Burst: 10,
	}
}

// RateLimit returns middleware that enforces a token bucket on tool calls
// using fortify's rate limiter. A refused call fails without running.
func RateLimit(cfg RateLimitConfig) middleware.Middleware {
	limiter := cfg.Limiter
	if limiter == nil {
		rate := cfg.Rate
		if rate <= 0 {
			rate = DefaultRateLimitConfig().Rate
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = rate
		}
		limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    burst,
			FailOpen: cfg.FailOpen,
		})
	}

	scope := cfg.Scope
	if scope == "" {
		scope = ScopeGlobal
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
			key := rateLimitKey(scope, execCtx)
			if !limiter.Allow(ctx, key) {
				logging.Warn().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(execCtx.Tool.Name())).
					Add(logging.Str("scope", string(scope))).
					Msg("rate limit exceeded")
				metrics.RecordRateLimitHit(ctx, execCtx.Tool.Name())
				return tool.Result{}, fmt.Errorf("tool '%s': %w", execCtx.Tool.Name(), policy.ErrRateLimitExceeded)
			}
			return next(ctx, execCtx)
		}
	}
}

func rateLimitKey(scope RateLimitScope, execCtx *middleware.ExecutionContext) string {
	switch scope {
	case ScopePerRun:
		return "run:" + execCtx.RunID
	case ScopePerTool:
		return "tool:" + execCtx.Tool.Name()
	default:
		return "global"
	}
}
