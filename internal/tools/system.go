package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/version"
)

// SystemPlugin provides self-inspection tools: key status, config summary
// and the tool catalogue.
type SystemPlugin struct {
	cfg   config.Config
	tools *tool.Registry
}

// NewSystemPlugin creates the system plugin.
func NewSystemPlugin(cfg config.Config) *SystemPlugin {
	return &SystemPlugin{cfg: cfg}
}

func (p *SystemPlugin) ID() string      { return "system" }
func (p *SystemPlugin) Name() string    { return "System" }
func (p *SystemPlugin) Version() string { return version.Version }
func (p *SystemPlugin) Close() error    { return nil }

func (p *SystemPlugin) Init(_ context.Context, api plugin.API) error {
	p.tools = api.Tools
	for _, t := range []tool.Tool{
		tool.Func{
			Def: domain.ToolDefinition{
				Name:            "check_api_keys",
				Description:     "Report which AI and data provider API keys are configured. Never reveals key values.",
				ParameterSchema: tool.ObjectSchema(nil),
			},
			Fn: p.checkAPIKeys,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:            "show_config",
				Description:     "Summarize the active configuration without secrets.",
				ParameterSchema: tool.ObjectSchema(nil),
			},
			Fn: p.showConfig,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:            "list_tools",
				Description:     "List every available tool with its description.",
				ParameterSchema: tool.ObjectSchema(nil),
			},
			Fn: p.listTools,
		},
	} {
		if err := api.Tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type keyCheck struct {
	label string
	env   string
	value string
}

func (p *SystemPlugin) keyChecks() []keyCheck {
	checks := make([]keyCheck, 0, 7)
	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		env := config.AIKeyEnv(provider)
		val := os.Getenv(env)
		if provider == p.cfg.AI.Provider && p.cfg.AI.APIKey != "" {
			val = p.cfg.AI.APIKey
		}
		checks = append(checks, keyCheck{label: provider, env: env, value: val})
	}
	return append(checks,
		keyCheck{"openbb", "OPENBB_PAT", p.cfg.Providers.OpenBB.APIKey},
		keyCheck{"coingecko", "COINGECKO_API_KEY", p.cfg.Providers.CoinGecko.APIKey},
		keyCheck{"tavily", "TAVILY_API_KEY", p.cfg.Providers.Tavily.APIKey},
		keyCheck{"exa", "EXA_API_KEY", p.cfg.Providers.Exa.APIKey},
	)
}

func (p *SystemPlugin) checkAPIKeys(_ context.Context, _ map[string]any) (domain.ToolResult, error) {
	status := make(map[string]any)
	var b strings.Builder
	b.WriteString("API key status:\n")

	configured := 0
	checks := p.keyChecks()
	for _, c := range checks {
		ok := strings.TrimSpace(c.value) != ""
		status[c.label] = ok
		mark := "missing"
		if ok {
			mark = "configured"
			configured++
		}
		fmt.Fprintf(&b, "  %-10s %-18s %s\n", c.label, c.env, mark)
	}
	fmt.Fprintf(&b, "\nAI provider: %s", orDash(p.cfg.AI.Provider))

	res := domain.Succeeded(fmt.Sprintf("%d of %d keys configured", configured, len(checks)), map[string]any{
		"keys":       status,
		"aiProvider": p.cfg.AI.Provider,
	})
	res.Display = b.String()
	return res, nil
}

func (p *SystemPlugin) showConfig(_ context.Context, _ map[string]any) (domain.ToolResult, error) {
	c := p.cfg
	summary := map[string]any{
		"aiProvider":     c.AI.Provider,
		"aiModel":        c.AI.Model,
		"aiFallbacks":    c.AI.Fallbacks,
		"sessionStore":   c.Session.Store,
		"maxTurns":       c.Session.MaxTurns,
		"telemetry":      c.Telemetry.IsEnabled(),
		"toolsParallel":  c.Tools.Parallel,
		"toolTimeoutMs":  c.Tools.TimeoutMs,
		"gatewayPort":    c.Gateway.Port,
		"gatewayBind":    c.Gateway.Bind,
		"disabledTools":  c.Tools.Disabled,
		"dataRoomRoots":  c.Files.Roots,
		"companiesSeed":  c.Companies.SeedFile,
		"synthesisLimit": c.Synthesis.MaxTokens,
	}

	rows := [][]string{
		{"ai.provider", orDash(c.AI.Provider)},
		{"ai.model", orDash(c.AI.Model)},
		{"ai.fallbacks", orDash(strings.Join(c.AI.Fallbacks, ", "))},
		{"session.store", c.Session.Store},
		{"session.maxTurns", fmt.Sprint(c.Session.MaxTurns)},
		{"telemetry.enabled", fmt.Sprint(c.Telemetry.IsEnabled())},
		{"tools.parallel", fmt.Sprint(c.Tools.Parallel)},
		{"tools.timeoutMs", fmt.Sprint(c.Tools.TimeoutMs)},
		{"gateway", fmt.Sprintf("%s:%d", c.Gateway.Bind, c.Gateway.Port)},
		{"files.roots", orDash(strings.Join(c.Files.Roots, ", "))},
	}

	res := domain.Succeeded("configuration summary", summary)
	res.Display = renderTable([]string{"Setting", "Value"}, rows)
	return res, nil
}

func (p *SystemPlugin) listTools(_ context.Context, _ map[string]any) (domain.ToolResult, error) {
	defs := p.tools.Definitions()
	names := make([]any, 0, len(defs))
	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		rows = append(rows, []string{d.Name, d.Description})
	}

	res := domain.Succeeded(fmt.Sprintf("%d tools available", len(defs)), map[string]any{"tools": names})
	res.Display = renderTable([]string{"Tool", "Description"}, rows)
	return res, nil
}
