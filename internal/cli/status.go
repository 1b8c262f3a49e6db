package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/version"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(11)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dealflow status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())

			line(out, "Config", paths.Config)
			line(out, "Data", paths.Data)
			line(out, "Logs", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				line(out, "Config", warnStyle.Render("error loading: "+err.Error()))
				return nil
			}
			paths.Apply(&cfg)

			line(out, "Gateway", fmt.Sprintf("port=%d bind=%s auth=%s tls=%v",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled))
			line(out, "Sessions", fmt.Sprintf("store=%s maxTurns=%d", cfg.Session.Store, cfg.Session.MaxTurns))
			line(out, "Database", cfg.Database.Path)
			if cfg.Telemetry.IsEnabled() {
				line(out, "Telemetry", fmt.Sprintf("%s (slow >= %s)", cfg.Telemetry.Dir, cfg.Telemetry.SlowThreshold()))
			} else {
				line(out, "Telemetry", "disabled")
			}

			// Registry construction logs per provider; keep it off the report.
			registry := llm.NewRegistryFromConfig(cfg.AI, logging.Nop())
			if providers := registry.List(); len(providers) > 0 {
				line(out, "AI", okStyle.Render(strings.Join(providers, ", ")))
			} else {
				line(out, "AI", warnStyle.Render("(none, keyword routing only)"))
			}

			line(out, "OpenBB", keyState(cfg.Providers.OpenBB))
			line(out, "CoinGecko", keyState(cfg.Providers.CoinGecko))
			line(out, "Tavily", keyState(cfg.Providers.Tavily))
			line(out, "Exa", keyState(cfg.Providers.Exa))
			if len(cfg.Tools.Disabled) > 0 {
				line(out, "Disabled", strings.Join(cfg.Tools.Disabled, ", "))
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", warnStyle.Render(issue.String()))
				}
			}
			return nil
		},
	}

	return cmd
}

func line(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}

// keyState never prints the key itself.
func keyState(p config.ProviderEntry) string {
	if p.APIKey == "" {
		return warnStyle.Render("no key") + " " + p.BaseURL
	}
	return okStyle.Render("configured") + " " + p.BaseURL
}
