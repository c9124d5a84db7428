// Package cli provides the omni command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	omni "github.com/felixgeelhaar/omni"
	"github.com/felixgeelhaar/omni/domain/config"
	infraconfig "github.com/felixgeelhaar/omni/infrastructure/config"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
)

// Version information set at build time.
var (
	Version   = omni.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFiles   []string
	logLevel   string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "omni",
		Short: "Adaptive coding assistant",
		Long: `omni plans a coding goal into steps, then repeatedly picks one tool call,
runs it and feeds the outcome back until the goal is done, it needs a
clarification, or its iteration budget runs out.

Failed tool calls are not fatal: the literal error is shown to the model,
which corrects its next action.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "Path to configuration file (default: omni.yaml if present)")
	flags.StringSliceVar(&app.envFiles, "env-file", nil, "Dotenv files to load (default: .env)")
	flags.StringVar(&app.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newRunCmd(),
		app.newToolsCmd(),
		app.newHistoryCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the reader that answers confirmations and clarifications.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// configOverrides are command-line values that replace configuration.
type configOverrides struct {
	provider      string
	model         string
	workspace     string
	maxIterations int
	confirmation  string
	persona       string
	strictEnv     bool
}

// loadConfig reads .env files and the configuration file, applies
// environment and command-line overrides, then validates. Flags win over
// the environment, which wins over the file.
func (a *App) loadConfig(o configOverrides) (*config.AgentConfig, error) {
	if err := infraconfig.LoadDotEnv(a.envFiles...); err != nil {
		return nil, err
	}

	flagEnv := make(map[string]string)
	if o.provider != "" {
		flagEnv[infraconfig.EnvProvider] = o.provider
	}
	if o.model != "" {
		flagEnv[infraconfig.EnvModel] = o.model
	}
	loader := infraconfig.NewLoader(
		infraconfig.WithValidation(false),
		infraconfig.WithStrictEnv(o.strictEnv),
		infraconfig.WithLookup(func(key string) (string, bool) {
			if v, ok := flagEnv[key]; ok {
				return v, true
			}
			return os.LookupEnv(key)
		}),
	)

	path := a.configPath
	if path == "" {
		path = infraconfig.Discover(".")
	}
	var (
		cfg *config.AgentConfig
		err error
	)
	if path == "" {
		cfg, err = loader.LoadDefault()
	} else {
		cfg, err = loader.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}

	if o.workspace != "" {
		cfg.Tools.Workspace = o.workspace
	}
	if o.maxIterations != 0 {
		cfg.Agent.MaxIterations = o.maxIterations
	}
	if o.confirmation != "" {
		cfg.Policy.Confirmation = o.confirmation
	}
	if o.persona != "" {
		cfg.Agent.Persona = o.persona
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	if errs := config.NewValidator().Validate(cfg); errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}

// initLogging routes structured logs to stderr so stdout carries only the
// progress stream.
func (a *App) initLogging(cfg *config.AgentConfig) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	})
	logging.SetLevel(cfg.Logging.Level)
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "omni version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
