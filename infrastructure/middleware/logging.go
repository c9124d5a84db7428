package middleware

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
)

// LoggingConfig configures the logging middleware.
type LoggingConfig struct {
	// LogInput logs the tool arguments (may contain sensitive data).
	LogInput bool
	// LogOutput logs the tool output (may be large).
	LogOutput bool
	// MaxOutput truncates logged output (default 500 bytes).
	MaxOutput int
}

// Logging returns middleware that logs tool execution.
func Logging(cfg LoggingConfig) middleware.Middleware {
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 500
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, execCtx *middleware.ExecutionContext) (tool.Result, error) {
			start := time.Now()
			name := execCtx.Tool.Name()

			entry := logging.Debug().
				Add(logging.RunID(execCtx.RunID)).
				Add(logging.Iteration(execCtx.Iteration)).
				Add(logging.StepID(execCtx.StepID)).
				Add(logging.ToolName(name))
			if cfg.LogInput && len(execCtx.Input) > 0 {
				entry = entry.Add(logging.Str("input", truncate(string(execCtx.Input), cfg.MaxOutput)))
			}
			entry.Msg("executing tool")

			result, err := next(ctx, execCtx)
			duration := time.Since(start)

			switch {
			case err != nil:
				logging.Warn().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(name)).
					Add(logging.ErrorField(err)).
					Add(logging.Duration(duration)).
					Msg("tool call rejected")
			case result.IsFailure():
				logging.Info().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(name)).
					Add(logging.ErrorText(result.ErrorText())).
					Add(logging.Duration(duration)).
					Msg("tool failed")
			default:
				e := logging.Info().
					Add(logging.RunID(execCtx.RunID)).
					Add(logging.ToolName(name)).
					Add(logging.Duration(duration))
				if cfg.LogOutput {
					e = e.Add(logging.Str("output", truncate(result.Output(), cfg.MaxOutput)))
				}
				e.Msg("tool executed")
			}

			return result, err
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
