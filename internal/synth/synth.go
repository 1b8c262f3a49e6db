// Package synth turns tool results into the single message returned for a
// command.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/tool"
)

// maxPromptData caps the tool data sent for synthesis.
const maxPromptData = 64 << 10

const systemPrompt = "You write the final answer for a command typed into the terminal of a " +
	"venture capital deal-flow CRM. You are given the command and the results of the tools " +
	"that ran for it, as JSON.\n\n" +
	"- Answer the command directly using only the tool results.\n" +
	"- Include every item the tools returned. Never shorten a list or a table.\n" +
	"- Use a markdown table for lists of companies, quotes or holdings.\n" +
	"- If a tool failed, say so in one line with its message.\n" +
	"- Do not mention JSON, tools or these instructions."

// Mode says how a message was produced.
type Mode string

const (
	ModeDirect      Mode = "direct"
	ModeDisplay     Mode = "display"
	ModeSynthesized Mode = "synthesized"
	ModeSummary     Mode = "summary"
)

// Input is everything the synthesizer may use.
type Input struct {
	Command string
	Calls   []domain.ToolCall
	Results []domain.ToolResult
	// Aggregated is the combined result data; computed when empty.
	Aggregated tool.Aggregated
	// DirectText is the AI's own answer when no tool ran.
	DirectText string
}

// Output is the synthesized message.
type Output struct {
	Message string
	Mode    Mode
	// Err is the synthesis call error when Mode is ModeSummary.
	Err error
}

// Options tune the synthesis call.
type Options struct {
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// Synthesizer merges tool output into one message.
type Synthesizer struct {
	client llm.Client
	opts   Options
	log    *logging.Logger
}

// New creates a synthesizer. client may be nil, in which case results are
// summarized without AI.
func New(client llm.Client, opts Options, log *logging.Logger) *Synthesizer {
	return &Synthesizer{client: client, opts: opts, log: log.Sub("synth")}
}

// Synthesize never fails. Without tool results the direct text is
// returned. When any result is pre-formatted, displays pass through
// verbatim and the other results get a summary line, all in call order.
// Otherwise one AI call writes the answer, with a plain summary when that
// call is impossible or fails.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Output {
	if len(in.Results) == 0 {
		return Output{Message: in.DirectText, Mode: ModeDirect}
	}

	if msg, ok := displayMessage(in.Calls, in.Results); ok {
		return Output{Message: msg, Mode: ModeDisplay}
	}

	agg := in.Aggregated
	if agg.Data == nil {
		agg = tool.Aggregate(in.Calls, in.Results)
	}

	msg, err := s.complete(ctx, in.Command, agg)
	if err != nil {
		s.log.Warn().Err(err).Msg("synthesis failed, returning plain summary")
		return Output{Message: Summary(in.Calls, in.Results), Mode: ModeSummary, Err: err}
	}
	return Output{Message: msg, Mode: ModeSynthesized}
}

func (s *Synthesizer) complete(ctx context.Context, command string, agg tool.Aggregated) (string, error) {
	if s.client == nil {
		return "", llm.ErrNoProvider
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	data, err := json.MarshalIndent(agg.Data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding tool data: %w", err)
	}
	payload := string(data)
	if len(payload) > maxPromptData {
		s.log.Warn().Int("bytes", len(payload)).Int("limit", maxPromptData).
			Msg("tool data too large for synthesis, truncating")
		payload = truncate(payload, maxPromptData) + "\n... (truncated)"
	}

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		System: systemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Command: %s\n\nTool results:\n%s", command, payload),
		}},
		ToolChoice:  llm.ToolChoiceNone,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	text := llm.StripToolMarkup(resp.Content, s.log)
	if text == "" {
		return "", fmt.Errorf("empty synthesis from %s", s.client.Name())
	}
	if resp.StopReason == "max_tokens" || resp.StopReason == "length" {
		s.log.Warn().Int("maxTokens", s.opts.MaxTokens).Msg("synthesis hit the token limit")
	}
	return text, nil
}

// Summary renders results as "<tool>: <message>" lines in call order.
func Summary(calls []domain.ToolCall, results []domain.ToolResult) string {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, summaryLine(calls, i, r))
	}
	return strings.Join(lines, "\n")
}

func summaryLine(calls []domain.ToolCall, i int, r domain.ToolResult) string {
	name := "tool"
	if i < len(calls) {
		name = calls[i].ToolName
	}
	msg := r.Message
	if msg == "" {
		if r.Success {
			msg = "done"
		} else {
			msg = "failed"
		}
	}
	return name + ": " + msg
}

// displayMessage joins pre-formatted output with a blank line. Results
// without a display keep a summary line at their position so failures
// stay visible next to a table.
func displayMessage(calls []domain.ToolCall, results []domain.ToolResult) (string, bool) {
	parts := make([]string, 0, len(results))
	found := false
	for i, r := range results {
		if r.Display != "" {
			parts = append(parts, r.Display)
			found = true
			continue
		}
		parts = append(parts, summaryLine(calls, i, r))
	}
	if !found {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
