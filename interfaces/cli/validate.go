package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/omni/domain/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	configOverrides
	print bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration exactly as run does (.env files, ${VAR} expansion,
environment overrides) and check it.

Examples:
  omni validate -c omni.yaml
  omni validate --strict        # fail on unset ${VAR} references
  omni validate --print         # show the effective configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strictEnv, "strict", false, "Fail on unset environment variable references")
	cmd.Flags().BoolVar(&opts.print, "print", false, "Print the effective configuration as YAML")

	return cmd
}

func (a *App) validateConfig(opts *validateOptions) error {
	cfg, err := a.loadConfig(opts.configOverrides)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if opts.print {
		shown := *cfg
		if shown.Provider.APIKey != "" {
			shown.Provider.APIKey = "***"
		}
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(shown)
	}

	s := newStyles(a.stdout)
	fmt.Fprintln(a.stdout, s.success.UnsetWidth().Render("✓ Configuration is valid"))
	fmt.Fprintf(a.stdout, "  Provider: %s", cfg.Provider.Kind)
	if cfg.Provider.Model != "" {
		fmt.Fprintf(a.stdout, " (%s)", cfg.Provider.Model)
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "  Workspace: %s\n", cfg.Tools.Workspace)
	fmt.Fprintf(a.stdout, "  Packs: %s\n", strings.Join(cfg.Tools.Packs, ", "))
	fmt.Fprintf(a.stdout, "  Max iterations: %d\n", cfg.Agent.MaxIterations)
	fmt.Fprintf(a.stdout, "  Max clarifications: %d\n", cfg.Agent.MaxClarifications)
	fmt.Fprintf(a.stdout, "  Persona: %s\n", orDefault(cfg.Agent.Persona, config.DefaultPersona))
	fmt.Fprintf(a.stdout, "  Confirmation: %s\n", orDefault(cfg.Policy.Confirmation, "prompt"))
	if cfg.Policy.RateLimit.Enabled {
		fmt.Fprintf(a.stdout, "  Rate limit: %d/s (burst %d)\n", cfg.Policy.RateLimit.Rate, cfg.Policy.RateLimit.Burst)
	}
	if len(cfg.Tools.CallLimits) > 0 {
		fmt.Fprintf(a.stdout, "  Call limits: %d tools\n", len(cfg.Tools.CallLimits))
	}
	if cfg.Audit.Enabled {
		fmt.Fprintf(a.stdout, "  Audit log: %s\n", cfg.Audit.DSN)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
