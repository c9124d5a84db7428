package middleware

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/policy"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// BudgetConfig configures the call limit middleware.
type BudgetConfig struct {
	// Budget tracks calls per tool. Nil disables the middleware.
	Budget *policy.Budget
	// Metrics records refused calls.
	Metrics telemetry.Metrics
}

// Budget returns middleware that enforces per-tool call limits. A call
// over its limit fails without running; every call that reaches the tool
// consumes one unit.
func Budget(cfg BudgetConfig) middleware.Middleware {
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NoopMetrics{}
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
			if cfg.Budget == nil {
				return next(ctx, execCtx)
			}

			name := execCtx.Tool.Name()
			if err := cfg.Budget.Consume(name); err != nil {
				logging.Warn().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(name)).
					Add(logging.Int("remaining", cfg.Budget.Remaining(name))).
					Msg("call limit reached")
				cfg.Metrics.RecordBudgetDenial(ctx, name)
				return tool.Result{}, fmt.Errorf("call limit reached for tool '%s': %w", name, policy.ErrBudgetExceeded)
			}

			return next(ctx, execCtx)
		}
	}
}
