package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/tool"
)

// agentHistoryTurns bounds the history sent for tool calling.
const agentHistoryTurns = 20

// AgentUnavailableMessage is returned when the AI provider cannot be
// reached for a command that needs it.
const AgentUnavailableMessage = "I couldn't reach the AI provider to work on that. " +
	"Try a more specific command such as \"show my portfolio\" or \"check api keys\"."

// Request is what a handler receives.
type Request struct {
	CorrelationID string
	Command       string
	Intent        domain.Intent
	History       []domain.Turn
	Context       map[string]any
}

// Outcome is what a handler produced. Calls and Results are parallel.
// Text is used when no tool ran.
type Outcome struct {
	Calls   []domain.ToolCall
	Results []domain.ToolResult
	Text    string
	// Err is a non-fatal failure worth recording, e.g. a provider error
	// the handler already turned into Text.
	Err error
}

// Handler executes a resolved command. A returned error is fatal for the
// request.
type Handler interface {
	Handle(ctx context.Context, req Request) (Outcome, error)
}

// ToolHandler runs one named tool with arguments built from the intent.
type ToolHandler struct {
	Tool     string
	Executor *tool.Executor
}

func (h ToolHandler) Handle(ctx context.Context, req Request) (Outcome, error) {
	call := domain.ToolCall{
		ID:        req.CorrelationID,
		ToolName:  h.Tool,
		Arguments: toolArgs(req),
	}
	res := h.Executor.Execute(ctx, call)
	return Outcome{Calls: []domain.ToolCall{call}, Results: []domain.ToolResult{res}}, nil
}

// toolArgs merges intent parameters, entities, the raw command and the
// request context. Earlier sources win on key conflicts.
func toolArgs(req Request) map[string]any {
	args := make(map[string]any, len(req.Intent.Parameters)+2+len(req.Context))
	for k, v := range req.Intent.Parameters {
		args[k] = v
	}
	if _, ok := args["entities"]; !ok && len(req.Intent.Entities) > 0 {
		args["entities"] = req.Intent.Entities
	}
	if _, ok := args["command"]; !ok {
		args["command"] = req.Command
	}
	for k, v := range req.Context {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}
	return args
}

// StaticHandler answers with fixed text.
type StaticHandler struct {
	Text string
}

func (h StaticHandler) Handle(context.Context, Request) (Outcome, error) {
	return Outcome{Text: h.Text}, nil
}

// AgentOptions tune the tool-calling request.
type AgentOptions struct {
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// AgentHandler lets the AI pick tools. It makes one tool-calling request,
// runs every returned call through the executor and leaves the wording to
// the synthesizer.
type AgentHandler struct {
	client   llm.Client
	executor *tool.Executor
	opts     AgentOptions
	log      *logging.Logger
}

// NewAgentHandler creates an agent handler. client may be nil.
func NewAgentHandler(client llm.Client, executor *tool.Executor, opts AgentOptions, log *logging.Logger) *AgentHandler {
	return &AgentHandler{client: client, executor: executor, opts: opts, log: log.Sub("agent")}
}

func (h *AgentHandler) Handle(ctx context.Context, req Request) (Outcome, error) {
	if h.client == nil {
		return Outcome{Text: AgentUnavailableMessage, Err: llm.ErrNoProvider}, nil
	}

	callCtx := ctx
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	history := req.History
	if len(history) > agentHistoryTurns {
		history = history[len(history)-agentHistoryTurns:]
	}
	msgs := llm.MessagesFromTurns(history)
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != req.Command {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Command})
	}

	defs := h.executor.Definitions()
	resp, err := h.client.Complete(callCtx, llm.CompletionRequest{
		System:      BuildAgentPrompt(PromptConfig{Tools: defs, Context: req.Context}),
		Messages:    msgs,
		Tools:       defs,
		ToolChoice:  llm.ToolChoiceAuto,
		MaxTokens:   h.opts.MaxTokens,
		Temperature: h.opts.Temperature,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("tool-calling request failed")
		return Outcome{Text: AgentUnavailableMessage, Err: err}, nil
	}

	if len(resp.ToolCalls) == 0 {
		return Outcome{Text: llm.StripToolMarkup(resp.Content, h.log)}, nil
	}

	h.log.Info().Int("toolCalls", len(resp.ToolCalls)).Msg("executing tool calls")
	calls, results := h.execute(ctx, resp.ToolCalls)
	return Outcome{Calls: calls, Results: results, Text: llm.StripToolMarkup(resp.Content, h.log)}, nil
}

// execute runs provider tool calls, keeping their order. Calls with
// arguments that are not a JSON object fail without running.
func (h *AgentHandler) execute(ctx context.Context, tcs []llm.ToolCall) ([]domain.ToolCall, []domain.ToolResult) {
	calls := make([]domain.ToolCall, len(tcs))
	results := make([]domain.ToolResult, len(tcs))

	var (
		runnable []domain.ToolCall
		index    []int
	)
	for i, tc := range tcs {
		calls[i] = domain.ToolCall{ID: tc.ID, ToolName: tc.Name}
		args, err := decodeArgs(tc.Arguments)
		if err != nil {
			results[i] = domain.Failed(fmt.Sprintf("invalid arguments for %s: %v", tc.Name, err))
			continue
		}
		calls[i].Arguments = args
		runnable = append(runnable, calls[i])
		index = append(index, i)
	}

	for j, res := range h.executor.ExecuteAll(ctx, runnable) {
		results[index[j]] = res
	}
	return calls, results
}

func decodeArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
