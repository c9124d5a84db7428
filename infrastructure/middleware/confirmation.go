package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/policy"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
)

// ConfirmationConfig configures the confirmation gate.
type ConfirmationConfig struct {
	// Confirmer answers confirmation requests. Nil declines every
	// high-risk call.
	Confirmer policy.Confirmer
	// Policy adds or exempts tools beyond their annotations.
	Policy policy.ConfirmationPolicy
}

// Confirmation returns middleware that asks for consent before a high-risk
// tool runs. A refusal, a confirmer error or a missing confirmer fails the
// call with tool.ErrConfirmationDeclined and the tool does not run.
func Confirmation(cfg ConfirmationConfig) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
			t := execCtx.Tool
			annotations := t.Annotations()

			if !cfg.Policy.Requires(t.Name(), annotations.NeedsConfirmation()) {
				return next(ctx, execCtx)
			}

			if cfg.Confirmer == nil {
				return tool.Result{}, fmt.Errorf("%w: %w", tool.ErrConfirmationDeclined, policy.ErrNoConfirmer)
			}

			req := policy.ConfirmationRequest{
				RunID:       execCtx.RunID,
				ToolName:    t.Name(),
				Description: t.Description(),
				Args:        execCtx.Args,
				RiskLevel:   annotations.RiskLevel.String(),
				Timestamp:   time.Now(),
			}

			ok, err := cfg.Confirmer.Confirm(ctx, req)
			if err != nil {
				logging.Warn().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(t.Name())).
					Add(logging.ErrorField(err)).
					Msg("confirmation failed")
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrConfirmationDeclined, err)
			}
			if !ok {
				logging.Info().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(t.Name())).
					Msg("tool call declined")
				return tool.Result{}, tool.ErrConfirmationDeclined
			}

			return next(ctx, execCtx)
		}
	}
}
