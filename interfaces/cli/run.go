package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/policy"
	"github.com/felixgeelhaar/omni/infrastructure/planner"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// ErrRunIncomplete is returned when a run ends without completing its goal.
var ErrRunIncomplete = errors.New("goal not completed")

// runOptions holds options for the run command.
type runOptions struct {
	configOverrides
	yes        bool
	verbose    bool
	jsonOutput bool

	// inference replaces the configured provider in tests.
	inference planner.Provider
}

// newRunCmd creates the run command.
func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Work on a coding goal",
		Long: `Plan the goal, then select and run one tool call per iteration until the
goal is done, a clarification is needed, or the iteration budget runs out.

High-risk tools (shell commands, deletions, commits) ask for confirmation
unless --yes is given or policy.confirmation is auto. Clarification
questions are answered on standard input and the run continues.

Examples:
  omni run "add a unit test for calc.Add"
  omni run -w ./service --max-iterations 30 "fix the failing build"
  omni run --provider ollama --model qwen2.5-coder "rename Foo to Bar"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGoal(cmd.Context(), strings.Join(args, " "), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.workspace, "workspace", "w", "", "Workspace root the tools are confined to")
	flags.IntVar(&opts.maxIterations, "max-iterations", 0, "Iteration budget (overrides config)")
	flags.StringVar(&opts.provider, "provider", "", "Inference provider: openai, openrouter, ollama, anthropic, mock")
	flags.StringVar(&opts.model, "model", "", "Model name (overrides config)")
	flags.StringVar(&opts.persona, "persona", "", "Persona whose preamble opens the model prompts")
	flags.StringVar(&opts.confirmation, "confirm", "", "Confirmation mode: prompt, auto, deny")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "Approve every confirmation (same as --confirm auto)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show transitions and iterations in the progress stream")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the final report as JSON instead of the progress stream")

	return cmd
}

// runGoal drives one goal to a final report, answering clarifications
// from standard input.
func (a *App) runGoal(ctx context.Context, goal string, opts *runOptions) error {
	if opts.yes {
		opts.confirmation = string(policy.ConfirmAuto)
	}
	cfg, err := a.loadConfig(opts.configOverrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.initLogging(cfg)

	mode, err := policy.ParseConfirmationMode(cfg.Policy.Confirmation)
	if err != nil {
		return err
	}
	prompter := NewPrompter(a.stdin, a.stdout)
	deps := runtimeDeps{
		Confirmer: confirmerFor(mode, prompter),
		Provider:  opts.inference,
	}
	if !opts.jsonOutput {
		deps.Sink = NewRenderer(a.stdout, opts.verbose)
	}

	rt, err := newRuntime(ctx, cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	run, err := rt.orchestrator.Run(ctx, goal)
	for errors.Is(err, agent.ErrAwaitingClarification) {
		if opts.jsonOutput {
			break
		}
		answer, aerr := prompter.Answer(ctx, run.Question)
		if aerr != nil {
			return fmt.Errorf("clarification for run %s: %w", run.ID, aerr)
		}
		run, err = rt.orchestrator.Resume(ctx, run.ID, answer)
	}
	if run == nil {
		return err
	}
	defer func() { _ = rt.orchestrator.Forget(run.ID) }()

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(run); encErr != nil {
			return encErr
		}
	} else {
		s := newStyles(a.stdout)
		printReport(a.stdout, s, run)
		a.printMetrics(ctx, s, rt.telemetry)
	}

	switch {
	case errors.Is(err, agent.ErrAwaitingClarification):
		return fmt.Errorf("%w: run %s is waiting for an answer", ErrRunIncomplete, run.ID)
	case err != nil:
		return err
	case run.State == agent.StateExhausted:
		return fmt.Errorf("%w: iteration budget of %d exhausted", ErrRunIncomplete, run.Snapshot.MaxIterations)
	}
	return nil
}

// printMetrics writes the run's metric totals when metrics are enabled.
func (a *App) printMetrics(ctx context.Context, s styles, tp *telemetry.Provider) {
	rm, ok, err := tp.Collect(ctx)
	if !ok || err != nil {
		return
	}
	totals := telemetry.Totals(rm)
	if len(totals) == 0 {
		return
	}
	fmt.Fprintln(a.stdout, s.muted.Render("  metrics:"))
	for _, t := range totals {
		fmt.Fprintln(a.stdout, s.muted.Render(fmt.Sprintf("    %-28s %d", t.Name, t.Value)))
	}
}
