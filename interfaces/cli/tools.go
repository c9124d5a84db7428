package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/omni/domain/tool"
	infrapack "github.com/felixgeelhaar/omni/infrastructure/pack"
)

type toolsOptions struct {
	configOverrides
	jsonOutput bool
}

// newToolsCmd creates the tools command.
func (a *App) newToolsCmd() *cobra.Command {
	opts := &toolsOptions{}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Long: `List every tool of the enabled packs with its risk level and whether it
asks for confirmation. The git pack is skipped outside a repository.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listTools(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", "", "Workspace root the tools are confined to")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print tool descriptors as JSON")

	return cmd
}

func (a *App) listTools(opts *toolsOptions) error {
	cfg, err := a.loadConfig(opts.configOverrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.initLogging(cfg)

	packs, err := infrapack.DefaultRegistry().Build(cfg)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		out := make(map[string][]tool.Descriptor, len(packs))
		for _, p := range packs {
			for _, t := range p.Tools {
				out[p.Name] = append(out[p.Name], tool.DescriptorOf(t))
			}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	s := newStyles(a.stdout)
	for i, p := range packs {
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		fmt.Fprintf(a.stdout, "%s %s\n", s.bold.Render(p.Name), s.muted.Render("v"+p.Version+" · "+p.Description))

		tools := append([]tool.Tool(nil), p.Tools...)
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
		for _, t := range tools {
			ann := t.Annotations()
			flags := []string{"risk " + ann.RiskLevel.String()}
			if ann.NeedsConfirmation() {
				flags = append(flags, "confirm")
			}
			if ann.CanRetry() {
				flags = append(flags, "retry")
			}
			fmt.Fprintf(a.stdout, "  %-22s %-28s %s\n", t.Name(), "["+strings.Join(flags, ", ")+"]", t.Description())
		}
	}
	return nil
}
