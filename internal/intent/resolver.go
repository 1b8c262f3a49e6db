// Package intent turns a free-text command into a handler choice through
// ordered tiers: direct keyword rules, AI classification, a degraded
// keyword fallback and finally a generic reply. Every attempt is recorded
// in a Trace.
package intent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
)

// ClarifyMessage is returned when nothing could make sense of a command.
const ClarifyMessage = "I don't understand that command. Try something like " +
	"\"list top biotech companies in the US\", \"show my portfolio\" or \"check api keys\". " +
	"Type \"what can you do\" for more."

const conversationSystemPrompt = "You are the assistant in the terminal of a venture capital deal-flow CRM. " +
	"Answer briefly and plainly. If the user seems to want data, suggest a concrete command " +
	"such as \"search biotech companies in the US\" or \"show my portfolio\"."

// Resolution is the outcome of resolving one command. Either Handler is
// set, or Reply holds the text to return as is.
type Resolution struct {
	Tier    Tier
	Handler string
	Rule    string
	Intent  domain.Intent
	Reply   string
	Trace   Trace
}

// Options configure a Resolver.
type Options struct {
	Rules    []Rule
	Patterns []Pattern
	Topics   []Topic
	// Handlers is the set of registered handler names. Every rule, pattern
	// and topic must point at one of them.
	Handlers []string
	// Actions are advertised to the classifier. Actions that are not
	// handler names fall through to the generic tier.
	Actions []ActionSpec
	Client  llm.Client
	// IntentTimeout bounds the classification call.
	IntentTimeout time.Duration
	// ChatMaxTokens and ChatTemperature tune the conversational reply.
	ChatMaxTokens   int
	ChatTemperature *float64
	ChatTimeout     time.Duration
}

// Resolver runs the tiers. It holds no per-request state and is safe for
// concurrent use.
type Resolver struct {
	rules      []Rule
	patterns   []Pattern
	topics     []Topic
	handlers   map[string]bool
	classifier *Classifier
	client     llm.Client
	opts       Options
	log        *logging.Logger
}

// NewResolver validates the rule set against the handler names and builds
// a resolver. Any dangling handler reference is an error.
func NewResolver(opts Options, log *logging.Logger) (*Resolver, error) {
	handlers := make(map[string]bool, len(opts.Handlers))
	for _, h := range opts.Handlers {
		handlers[h] = true
	}

	var errs []error
	for _, r := range opts.Rules {
		if !handlers[r.Handler] {
			errs = append(errs, fmt.Errorf("rule %q: unknown handler %q", r.Name, r.Handler))
		}
	}
	for _, p := range opts.Patterns {
		if !handlers[p.Action] {
			errs = append(errs, fmt.Errorf("pattern %v: unknown handler %q", p.Keywords, p.Action))
		}
	}
	for _, t := range opts.Topics {
		if !handlers[t.Handler] {
			errs = append(errs, fmt.Errorf("topic %q: unknown handler %q", t.Name, t.Handler))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Resolver{
		rules:      slices.Clone(opts.Rules),
		patterns:   slices.Clone(opts.Patterns),
		topics:     slices.Clone(opts.Topics),
		handlers:   handlers,
		classifier: NewClassifier(opts.Client, opts.Actions, opts.IntentTimeout),
		client:     opts.Client,
		opts:       opts,
		log:        log.Sub("intent"),
	}, nil
}

// Resolve picks a handler for command. history is the session so far,
// ending with the command itself. Resolve never fails; the worst case is a
// clarifying reply.
func (r *Resolver) Resolve(ctx context.Context, command string, history []domain.Turn) Resolution {
	var trace Trace
	text := normalize(command)

	// Tier 1: direct keyword rules.
	start := time.Now()
	for _, rule := range r.rules {
		if rule.matches(text) {
			trace.add(TierDirectMatch, OutcomeMatched, start, func(s *Step) { s.Rule = rule.Name })
			trace.skip(TierAIIntent)
			trace.skip(TierPatternFallback)
			trace.skip(TierGenericResponse)
			return Resolution{
				Tier:    TierDirectMatch,
				Handler: rule.Handler,
				Rule:    rule.Name,
				Intent:  domain.NewIntent(rule.Handler),
				Trace:   trace,
			}
		}
	}
	trace.add(TierDirectMatch, OutcomeUnresolved, start, nil)

	// Tier 2: AI classification.
	in := domain.NewIntent("")
	tier := TierAIIntent
	start = time.Now()
	cls, err := r.classifier.Classify(ctx, command, history)
	switch c := cls.(type) {
	case nil:
		trace.add(TierAIIntent, OutcomeFailed, start, func(s *Step) { s.Error = err.Error() })
		r.log.Warn().Err(err).Msg("intent classification failed, using keyword fallback")

		// Tier 3: only when tier 2 raised.
		start = time.Now()
		in = r.matchPattern(command, text)
		tier = TierPatternFallback
		outcome := OutcomeMatched
		if in.Action == domain.ActionUnknown {
			outcome = OutcomeUnresolved
		}
		trace.add(TierPatternFallback, outcome, start, func(s *Step) { s.Action = in.Action })
	case TierFailure:
		trace.add(TierAIIntent, OutcomeFailed, start, func(s *Step) { s.Error = c.Error() })
		trace.skip(TierPatternFallback)
		r.log.Debug().Str("reason", c.Reason).Msg("classifier output unusable")
	case ParsedIntent:
		in = c.Intent
		trace.add(TierAIIntent, OutcomeMatched, start, func(s *Step) { s.Action = in.Action })
		trace.skip(TierPatternFallback)
	}

	if r.handlers[in.Action] {
		trace.skip(TierGenericResponse)
		return Resolution{Tier: tier, Handler: in.Action, Intent: in, Trace: trace}
	}

	// Tier 4: topic buckets, then a conversational reply.
	start = time.Now()
	for _, topic := range r.topics {
		if containsAny(text, topic.Keywords) {
			trace.add(TierGenericResponse, OutcomeMatched, start, func(s *Step) {
				s.Rule = "topic:" + topic.Name
				s.Action = in.Action
			})
			return Resolution{
				Tier:    TierGenericResponse,
				Handler: topic.Handler,
				Rule:    "topic:" + topic.Name,
				Intent:  in,
				Trace:   trace,
			}
		}
	}

	reply, err := r.converse(ctx, command, history)
	if err != nil {
		r.log.Warn().Err(err).Msg("conversational reply failed")
		trace.add(TierGenericResponse, OutcomeUnresolved, start, func(s *Step) {
			s.Action = in.Action
			s.Error = err.Error()
		})
		return Resolution{Tier: TierGenericResponse, Intent: in, Reply: ClarifyMessage, Trace: trace}
	}
	trace.add(TierGenericResponse, OutcomeMatched, start, func(s *Step) {
		s.Rule = "conversation"
		s.Action = in.Action
	})
	return Resolution{Tier: TierGenericResponse, Rule: "conversation", Intent: in, Reply: reply, Trace: trace}
}

func (r *Resolver) matchPattern(command, text string) domain.Intent {
	for _, p := range r.patterns {
		if containsAny(text, p.Keywords) {
			in := domain.NewIntent(p.Action)
			in.Entities = extractEntities(p.Action, command)
			return in
		}
	}
	return domain.NewIntent(domain.ActionUnknown)
}

// converse asks for a free-form, history-aware reply.
func (r *Resolver) converse(ctx context.Context, command string, history []domain.Turn) (string, error) {
	if r.client == nil {
		return "", llm.ErrNoProvider
	}
	if r.opts.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ChatTimeout)
		defer cancel()
	}

	msgs := llm.MessagesFromTurns(history)
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != command {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: command})
	}
	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		System:      conversationSystemPrompt,
		Messages:    msgs,
		ToolChoice:  llm.ToolChoiceNone,
		MaxTokens:   r.opts.ChatMaxTokens,
		Temperature: r.opts.ChatTemperature,
	})
	if err != nil {
		return "", err
	}
	reply := llm.StripToolMarkup(resp.Content, r.log)
	if reply == "" {
		return "", errors.New("empty reply")
	}
	return reply, nil
}
