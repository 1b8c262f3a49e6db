// Package orchestrator handles one free-text command end to end: session
// history, intent resolution, handler execution, synthesis, persistence and
// telemetry, all behind a single error boundary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/hooks"
	"github.com/soyeahso/dealflow/internal/intent"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/session"
	"github.com/soyeahso/dealflow/internal/synth"
	"github.com/soyeahso/dealflow/internal/telemetry"
	"github.com/soyeahso/dealflow/internal/tool"
)

// Messages returned without consulting any handler.
const (
	FatalMessage        = "Something went wrong while processing your command. Please try again."
	EmptyCommandMessage = "Please type a command. Try \"what can you do\" to see examples."
	noAnswerMessage     = "I couldn't produce an answer for that command."
)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Config    config.Config
	Sessions  *session.Store
	Executor  *tool.Executor
	Client    llm.Client // nil when no AI provider is configured
	Telemetry *telemetry.Recorder
	Hooks     *hooks.Manager
	Log       *logging.Logger

	// Rule sets; nil means the defaults, pruned to the registered tools.
	Rules    []intent.Rule
	Patterns []intent.Pattern
	Topics   []intent.Topic
}

// Orchestrator is the single entry point for terminal commands. It is safe
// for concurrent use.
type Orchestrator struct {
	sessions  *session.Store
	executor  *tool.Executor
	resolver  *intent.Resolver
	synth     *synth.Synthesizer
	handlers  map[string]Handler
	telemetry *telemetry.Recorder
	hooks     *hooks.Manager
	slow      time.Duration
	log       *logging.Logger
}

// New builds the handler set and resolver. It fails when a rule points at
// a handler that does not exist.
func New(d Deps) (*Orchestrator, error) {
	if d.Sessions == nil || d.Executor == nil {
		return nil, errors.New("orchestrator: sessions and executor are required")
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Telemetry == nil {
		d.Telemetry = telemetry.Nop()
	}
	if d.Hooks == nil {
		d.Hooks = hooks.NewManager(d.Log)
	}
	log := d.Log.Sub("orchestrator")
	cfg := d.Config

	defs := d.Executor.Definitions()
	handlers := make(map[string]Handler, len(defs)+2)
	for _, def := range defs {
		handlers[def.Name] = ToolHandler{Tool: def.Name, Executor: d.Executor}
	}
	handlers[intent.HandlerAgent] = NewAgentHandler(d.Client, d.Executor, AgentOptions{
		MaxTokens:   cfg.Synthesis.MaxTokens,
		Temperature: cfg.Chat.Temperature,
		Timeout:     cfg.Synthesis.Timeout(),
	}, d.Log)
	handlers[intent.HandlerHelp] = StaticHandler{Text: helpText(defs)}

	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	rules, patterns, topics := d.Rules, d.Patterns, d.Topics
	if rules == nil {
		rules = pruneRules(intent.DefaultRules(), handlers, log)
	}
	if patterns == nil {
		patterns = prunePatterns(intent.DefaultPatterns(), handlers, log)
	}
	if topics == nil {
		topics = pruneTopics(intent.DefaultTopics(), handlers, log)
	}

	resolver, err := intent.NewResolver(intent.Options{
		Rules:           rules,
		Patterns:        patterns,
		Topics:          topics,
		Handlers:        names,
		Actions:         actionSpecs(defs),
		Client:          d.Client,
		IntentTimeout:   cfg.Orchestrator.IntentTimeout(),
		ChatMaxTokens:   cfg.Chat.MaxTokens,
		ChatTemperature: cfg.Chat.Temperature,
		ChatTimeout:     cfg.Chat.Timeout(),
	}, d.Log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return &Orchestrator{
		sessions: d.Sessions,
		executor: d.Executor,
		resolver: resolver,
		synth: synth.New(d.Client, synth.Options{
			MaxTokens:   cfg.Synthesis.MaxTokens,
			Temperature: cfg.Synthesis.Temperature,
			Timeout:     cfg.Synthesis.Timeout(),
		}, d.Log),
		handlers:  handlers,
		telemetry: d.Telemetry,
		hooks:     d.Hooks,
		slow:      cfg.Telemetry.SlowThreshold(),
		log:       log,
	}, nil
}

// Handlers returns the registered handler names, sorted.
func (o *Orchestrator) Handlers() []string {
	names := make([]string, 0, len(o.handlers))
	for name := range o.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs one command. It never panics and never returns an error:
// anything unexpected becomes a Response with Success false and a generic
// message, plus an error telemetry event.
func (o *Orchestrator) Handle(ctx context.Context, cmd domain.Command) (resp domain.Response) {
	r := &run{
		o:     o,
		cmd:   cmd,
		cid:   telemetry.NewCorrelationID(),
		start: time.Now(),
		sid:   cmd.SessionID,
	}
	defer func() {
		if p := recover(); p != nil {
			o.log.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("command handling panicked")
			resp = r.fail(fmt.Errorf("panic: %v", p))
		}
	}()

	resp, err := r.execute(ctx)
	if err != nil {
		return r.fail(err)
	}
	return resp
}

// run is the state of one Handle call.
type run struct {
	o     *Orchestrator
	cmd   domain.Command
	cid   string
	sid   string
	start time.Time

	stages   map[string]int64
	resolved intent.Resolution
}

func (r *run) mark(stage string, since time.Time) time.Time {
	if r.stages == nil {
		r.stages = make(map[string]int64, 5)
	}
	now := time.Now()
	r.stages[stage] = now.Sub(since).Milliseconds()
	return now
}

func (r *run) execute(ctx context.Context) (domain.Response, error) {
	o := r.o
	text := strings.TrimSpace(r.cmd.Text)

	o.hooks.EmitAsync(ctx, hooks.EventCommandReceived, map[string]any{
		"correlationId": r.cid,
		"sessionId":     r.sid,
		"command":       text,
	})

	t := time.Now()
	sess, loaded := o.sessions.LoadOrCreate(ctx, r.sid)
	r.sid = sess.ID
	t = r.mark("sessionLoadMs", t)
	if loaded.Err != nil {
		o.hooks.EmitAsync(ctx, hooks.EventSessionRecovered, map[string]any{
			"correlationId": r.cid,
			"sessionId":     sess.ID,
			"kind":          string(loaded.Err.Kind),
			"error":         loaded.Err.Error(),
		})
	}

	// Blank input adds no turn, so the session is not saved.
	if text == "" {
		resp := domain.Response{
			Success:       true,
			Message:       EmptyCommandMessage,
			ToolsUsed:     []string{},
			SessionID:     sess.ID,
			CorrelationID: r.cid,
		}
		r.record(resp, loaded, nil)
		return resp, nil
	}

	o.sessions.AppendTurn(sess, domain.RoleUser, text)

	res := o.resolver.Resolve(ctx, text, sess.History())
	r.resolved = res
	t = r.mark("resolveMs", t)

	var (
		out synth.Output
		agg tool.Aggregated
		oc  Outcome
	)
	if res.Handler == "" {
		out = synth.Output{Message: res.Reply, Mode: synth.ModeDirect}
	} else {
		h, ok := o.handlers[res.Handler]
		if !ok {
			return domain.Response{}, fmt.Errorf("resolved handler %q is not registered", res.Handler)
		}
		var err error
		oc, err = h.Handle(ctx, Request{
			CorrelationID: r.cid,
			Command:       text,
			Intent:        res.Intent,
			History:       sess.History(),
			Context:       r.cmd.Context,
		})
		if err != nil {
			return domain.Response{}, fmt.Errorf("handler %s: %w", res.Handler, err)
		}
		t = r.mark("handlerMs", t)
		for i, call := range oc.Calls {
			o.hooks.EmitAsync(ctx, hooks.EventToolExecuted, map[string]any{
				"correlationId": r.cid,
				"tool":          call.ToolName,
				"success":       oc.Results[i].Success,
				"message":       oc.Results[i].Message,
			})
		}

		agg = tool.Aggregate(oc.Calls, oc.Results)
		out = o.synth.Synthesize(ctx, synth.Input{
			Command:    text,
			Calls:      oc.Calls,
			Results:    oc.Results,
			Aggregated: agg,
			DirectText: oc.Text,
		})
		t = r.mark("synthesisMs", t)
	}

	message := out.Message
	if strings.TrimSpace(message) == "" {
		message = noAnswerMessage
	}

	o.sessions.AppendTurn(sess, domain.RoleAssistant, message)
	persistErr := o.sessions.Save(ctx, sess)
	r.mark("sessionSaveMs", t)

	toolsUsed := agg.ToolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	resp := domain.Response{
		Success:             true,
		Message:             message,
		ToolsUsed:           toolsUsed,
		Reasoning:           reasoning(res),
		SessionID:           sess.ID,
		CorrelationID:       r.cid,
		ConversationContext: sess.History(),
	}
	if len(agg.Data) > 0 {
		resp.Data = agg.Data
	}

	r.record(resp, loaded, map[string]any{
		"synthesis":    string(out.Mode),
		"failures":     len(agg.Failures),
		"persisted":    persistErr == nil,
		"handlerError": errString(oc.Err),
		"synthError":   errString(out.Err),
	})
	o.hooks.EmitAsync(ctx, hooks.EventResponseReady, map[string]any{
		"correlationId": r.cid,
		"sessionId":     sess.ID,
		"success":       resp.Success,
		"message":       resp.Message,
		"toolsUsed":     resp.ToolsUsed,
	})
	return resp, nil
}

// record writes the interaction, routing and, when slow, performance
// events of a completed request.
func (r *run) record(resp domain.Response, loaded session.LoadOutcome, extra map[string]any) {
	o := r.o
	elapsed := time.Since(r.start)
	res := r.resolved

	interaction := map[string]any{
		"command":   r.cmd.Text,
		"sessionId": resp.SessionID,
		"success":   resp.Success,
		"response":  resp.Message,
		"toolsUsed": resp.ToolsUsed,
		"elapsedMs": elapsed.Milliseconds(),
	}
	for k, v := range extra {
		if v != "" {
			interaction[k] = v
		}
	}
	o.telemetry.Interaction(r.cid, interaction)

	routing := map[string]any{
		"sessionId": resp.SessionID,
		"tier":      string(res.Tier),
		"handler":   res.Handler,
		"rule":      res.Rule,
		"action":    res.Intent.Action,
		"trace":     res.Trace.Payload(),
	}
	if loaded.Err != nil {
		routing["sessionRecovered"] = string(loaded.Err.Kind)
	}
	o.telemetry.Routing(r.cid, routing)

	if o.slow > 0 && elapsed >= o.slow {
		perf := map[string]any{
			"elapsedMs":   elapsed.Milliseconds(),
			"thresholdMs": o.slow.Milliseconds(),
			"tier":        string(res.Tier),
			"handler":     res.Handler,
		}
		for k, v := range r.stages {
			perf[k] = v
		}
		o.telemetry.Performance(r.cid, perf)
	}

	o.log.Info().
		Str("correlationId", r.cid).
		Str("session", resp.SessionID).
		Str("tier", string(res.Tier)).
		Str("handler", res.Handler).
		Strs("tools", resp.ToolsUsed).
		Dur("elapsed", elapsed).
		Msg("command handled")
}

// fail builds the response for a failure that reached the boundary.
func (r *run) fail(err error) domain.Response {
	o := r.o
	o.log.Error().Err(err).Str("correlationId", r.cid).Msg("command failed")
	o.telemetry.Error(r.cid, err, map[string]any{
		"command":   r.cmd.Text,
		"sessionId": r.sid,
		"tier":      string(r.resolved.Tier),
		"handler":   r.resolved.Handler,
		"elapsedMs": time.Since(r.start).Milliseconds(),
	})
	return domain.Response{
		Success:       false,
		Message:       FatalMessage,
		ToolsUsed:     []string{},
		SessionID:     r.sid,
		CorrelationID: r.cid,
	}
}

func reasoning(res intent.Resolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tier=%s", res.Tier)
	if res.Handler != "" {
		fmt.Fprintf(&b, " handler=%s", res.Handler)
	}
	if res.Rule != "" {
		fmt.Fprintf(&b, " rule=%s", res.Rule)
	}
	if res.Intent.Action != "" && res.Intent.Action != res.Handler {
		fmt.Fprintf(&b, " action=%s", res.Intent.Action)
	}
	fmt.Fprintf(&b, "; trace: %s", res.Trace)
	return b.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// actionSpecs advertises every tool, plus the agent and help handlers, to
// the classifier.
func actionSpecs(defs []domain.ToolDefinition) []intent.ActionSpec {
	specs := make([]intent.ActionSpec, 0, len(defs)+3)
	for _, d := range defs {
		desc := d.Description
		if params := paramNames(d.ParameterSchema); len(params) > 0 {
			desc += " Parameters: " + strings.Join(params, ", ") + "."
		}
		specs = append(specs, intent.ActionSpec{Name: d.Name, Description: desc})
	}
	return append(specs,
		intent.ActionSpec{Name: intent.HandlerAgent, Description: "Requests that need several tools or analysis across results."},
		intent.ActionSpec{Name: intent.HandlerHelp, Description: "Questions about what the terminal can do."},
		intent.ActionSpec{Name: "chat", Description: "Greetings and general questions that need no data."},
	)
}

func paramNames(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func pruneRules(in []intent.Rule, handlers map[string]Handler, log *logging.Logger) []intent.Rule {
	out := in[:0]
	for _, r := range in {
		if _, ok := handlers[r.Handler]; ok {
			out = append(out, r)
			continue
		}
		log.Debug().Str("rule", r.Name).Str("handler", r.Handler).Msg("dropping rule for unavailable handler")
	}
	return out
}

func prunePatterns(in []intent.Pattern, handlers map[string]Handler, log *logging.Logger) []intent.Pattern {
	out := in[:0]
	for _, p := range in {
		if _, ok := handlers[p.Action]; ok {
			out = append(out, p)
			continue
		}
		log.Debug().Str("action", p.Action).Msg("dropping pattern for unavailable handler")
	}
	return out
}

func pruneTopics(in []intent.Topic, handlers map[string]Handler, log *logging.Logger) []intent.Topic {
	out := in[:0]
	for _, t := range in {
		if _, ok := handlers[t.Handler]; ok {
			out = append(out, t)
			continue
		}
		log.Debug().Str("topic", t.Name).Str("handler", t.Handler).Msg("dropping topic for unavailable handler")
	}
	return out
}
