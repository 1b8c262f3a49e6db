package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
)

// PromptConfig controls the tool-calling system prompt.
type PromptConfig struct {
	Now     time.Time
	Tools   []domain.ToolDefinition
	Context map[string]any
}

// BuildAgentPrompt constructs the system prompt for AI tool calling.
func BuildAgentPrompt(cfg PromptConfig) string {
	var b strings.Builder

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&b, "Current date: %s\n", now.Format("2006-01-02"))

	if len(cfg.Context) > 0 {
		keys := make([]string, 0, len(cfg.Context))
		for k := range cfg.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, cfg.Context[k])
		}
	}
	b.WriteString("\n")

	b.WriteString("You are the command assistant of a venture capital deal-flow CRM.\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Prefer calling tools over answering from memory for companies, prices, holdings and files.\n")
	b.WriteString("- Call several tools at once when the command needs more than one.\n")
	b.WriteString("- Use the tool parameter names exactly as declared.\n")
	b.WriteString("- If no tool fits, answer briefly in plain text.\n")

	if len(cfg.Tools) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}
	return b.String()
}

// helpText lists what the terminal understands.
func helpText(tools []domain.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("Type a command in plain English. For example:\n\n")
	for _, ex := range []string{
		"list top biotech companies in the US (not healthcare), ranked by market cap",
		"show my portfolio",
		"add 10 NVDA at 120 to my portfolio",
		"what's the price of bitcoin and ethereum",
		"find companies similar to stripe.com",
		"latest news on climate tech funding",
		"check api keys",
	} {
		fmt.Fprintf(&b, "  %s\n", ex)
	}
	if len(tools) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "  %-24s %s\n", t.Name, t.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
