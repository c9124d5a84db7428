package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// Metrics returns middleware that records a count and duration per tool call.
// A rejected call (error) and a failure result both count as unsuccessful.
func Metrics(m telemetry.Metrics) middleware.Middleware {
	if m == nil {
		m = telemetry.NoopMetrics{}
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
			start := time.Now()
			result, err := next(ctx, execCtx)
			m.RecordToolCall(ctx, execCtx.Tool.Name(), err == nil && result.IsSuccess(), time.Since(start))
			return result, err
		}
	}
}
