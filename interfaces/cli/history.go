package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/omni/infrastructure/storage/sqlite"
)

// ErrNoHistory is returned when the audit log does not exist.
var ErrNoHistory = errors.New("no audit log")

type historyOptions struct {
	configOverrides
	db      string
	limit   int
	verbose bool
}

// newHistoryCmd creates the history command.
func (a *App) newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Long: `Without arguments, list the most recent runs in the audit log. With a run
ID, replay that run's progress stream.

Runs are recorded when audit.enabled is set in the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return a.showHistory(cmd, runID, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.db, "db", "", "Audit database path (default: audit.dsn)")
	flags.IntVarP(&opts.limit, "limit", "n", 20, "Number of runs to list")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show transitions and iterations when replaying a run")

	return cmd
}

func (a *App) showHistory(cmd *cobra.Command, runID string, opts *historyOptions) error {
	dsn := opts.db
	if dsn == "" {
		cfg, err := a.loadConfig(opts.configOverrides)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		a.initLogging(cfg)
		dsn = cfg.Audit.DSN
	}
	if isFilePath(dsn) {
		if _, err := os.Stat(dsn); err != nil {
			return fmt.Errorf("%w at %s", ErrNoHistory, dsn)
		}
	}

	store, err := sqlite.NewEventStore(sqlite.DefaultConfig(dsn))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if runID != "" {
		events, err := store.LoadEvents(ctx, runID)
		if err != nil {
			return err
		}
		return NewRenderer(a.stdout, opts.verbose).Publish(ctx, events...)
	}

	runs, err := store.ListRuns(ctx, opts.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs recorded")
		return nil
	}

	s := newStyles(a.stdout)
	fmt.Fprintln(a.stdout, s.bold.Render(fmt.Sprintf("%-42s %7s  %-19s  %s", "RUN", "EVENTS", "STARTED", "DURATION")))
	for _, r := range runs {
		first := time.Unix(r.FirstSeen, 0)
		dur := time.Duration(r.LastSeen-r.FirstSeen) * time.Second
		fmt.Fprintf(a.stdout, "%-42s %7d  %-19s  %s\n", r.RunID, r.EventCount, first.Format(time.DateTime), dur)
	}
	return nil
}

// isFilePath reports whether dsn names a plain database file.
func isFilePath(dsn string) bool {
	return dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}
