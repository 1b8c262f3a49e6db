package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/llm"
)

const (
	classifyMaxTokens   = 512
	classifyHistorySize = 6
)

// ActionSpec describes an action the classifier may choose.
type ActionSpec struct {
	Name        string
	Description string
}

// Classification is the result of one AI classification call: either a
// ParsedIntent or a TierFailure.
type Classification interface {
	isClassification()
}

// ParsedIntent is a well-formed classification.
type ParsedIntent struct {
	Intent domain.Intent
}

// TierFailure is a classification the model returned but that could not be
// used. It is not a provider error.
type TierFailure struct {
	Reason string
	Raw    string
}

func (ParsedIntent) isClassification() {}
func (TierFailure) isClassification()  {}

func (f TierFailure) Error() string {
	return "unusable classification: " + f.Reason
}

// Classifier asks the AI provider to turn a command into an intent.
type Classifier struct {
	client  llm.Client
	actions []ActionSpec
	known   map[string]bool
	timeout time.Duration
}

// NewClassifier creates a classifier over the given actions. A nil client
// makes every call fail with llm.ErrNoProvider.
func NewClassifier(client llm.Client, actions []ActionSpec, timeout time.Duration) *Classifier {
	known := make(map[string]bool, len(actions))
	for _, a := range actions {
		known[a.Name] = true
	}
	return &Classifier{client: client, actions: actions, known: known, timeout: timeout}
}

// Classify sends one classification request. The error is non-nil only
// when the provider call itself failed or timed out; unusable output comes
// back as a TierFailure.
func (c *Classifier) Classify(ctx context.Context, command string, history []domain.Turn) (Classification, error) {
	if c.client == nil {
		return nil, llm.ErrNoProvider
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if len(history) > classifyHistorySize {
		history = history[len(history)-classifyHistorySize:]
	}
	msgs := llm.MessagesFromTurns(history)
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != command {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: command})
	}

	zero := 0.0
	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		System:      c.systemPrompt(),
		Messages:    msgs,
		ToolChoice:  llm.ToolChoiceNone,
		MaxTokens:   classifyMaxTokens,
		Temperature: &zero,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	return c.parse(resp.Content), nil
}

func (c *Classifier) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s\n\n", time.Now().Format("2006-01-02"))
	b.WriteString("You classify commands typed into the terminal of a venture capital deal-flow CRM.\n")
	b.WriteString("Reply with a single JSON object and nothing else:\n\n")
	b.WriteString(`{"action": "<one action name>", "entities": ["..."], "parameters": {"...": "..."}, "outputFormat": "table|text|json"}`)
	b.WriteString("\n\n")
	b.WriteString("- action: exactly one of the names listed below.\n")
	b.WriteString("- entities: company names, tickers, coins, sectors or files mentioned in the command.\n")
	b.WriteString("- parameters: arguments for the action, using the action's parameter names when known " +
		"(e.g. sectors, exclude_sectors, country, limit, symbols, coins, query).\n")
	b.WriteString("- Use \"chat\" for greetings and questions that need no data.\n\n")
	b.WriteString("Actions:\n")
	for _, a := range c.actions {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	return b.String()
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(\\{.*?\\})\\s*```")

// extractJSON returns the JSON object in raw, either bare or inside a
// fenced block.
func extractJSON(raw string) (string, bool) {
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

type classifierOutput struct {
	Action       string         `json:"action"`
	Entities     []string       `json:"entities"`
	Parameters   map[string]any `json:"parameters"`
	OutputFormat string         `json:"outputFormat"`
}

func (c *Classifier) parse(raw string) Classification {
	body, ok := extractJSON(raw)
	if !ok {
		return TierFailure{Reason: "no JSON object in output", Raw: raw}
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return TierFailure{Reason: "malformed JSON: " + err.Error(), Raw: raw}
	}

	action := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(out.Action)), " ", "_")
	switch {
	case action == "" || action == domain.ActionUnknown:
		return TierFailure{Reason: "no action", Raw: raw}
	case !c.known[action]:
		return TierFailure{Reason: fmt.Sprintf("unknown action %q", action), Raw: raw}
	}

	in := domain.NewIntent(action)
	in.Entities = out.Entities
	in.OutputFormat = out.OutputFormat
	for k, v := range out.Parameters {
		in.Parameters[k] = v
	}
	return ParsedIntent{Intent: in}
}
