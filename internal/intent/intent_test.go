package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
)

var testHandlers = []string{
	"check_api_keys", "show_config", "list_tools", "portfolio_view", "portfolio_add",
	"list_files", "search_companies", "get_crypto_price", "get_stock_quote",
	"find_similar_companies", "web_search", HandlerAgent, HandlerHelp,
}

func testActions() []ActionSpec {
	actions := make([]ActionSpec, 0, len(testHandlers)+1)
	for _, h := range testHandlers {
		actions = append(actions, ActionSpec{Name: h, Description: "does " + h})
	}
	return append(actions, ActionSpec{Name: "chat", Description: "small talk"})
}

func isClassify(req llm.CompletionRequest) bool {
	return strings.Contains(req.System, "Reply with a single JSON object")
}

func newResolver(t *testing.T, client llm.Client) *Resolver {
	t.Helper()
	opts := Options{
		Rules:         DefaultRules(),
		Patterns:      DefaultPatterns(),
		Topics:        DefaultTopics(),
		Handlers:      testHandlers,
		Actions:       testActions(),
		IntentTimeout: time.Second,
		ChatMaxTokens: 1024,
	}
	if client != nil {
		opts.Client = client
	}
	r, err := NewResolver(opts, logging.New(nil, "silent"))
	require.NoError(t, err)
	return r
}

func userTurn(text string) []domain.Turn {
	return []domain.Turn{{Role: domain.RoleUser, Content: text, Timestamp: time.Now()}}
}

// --- Tier 1 ---

func TestResolve_DirectMatchSkipsAI(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock"}
	r := newResolver(t, mock)

	res := r.Resolve(context.Background(), "Check API keys", userTurn("Check API keys"))

	assert.Equal(t, TierDirectMatch, res.Tier)
	assert.Equal(t, "check_api_keys", res.Handler)
	assert.Equal(t, "api_keys", res.Rule)
	assert.Empty(t, mock.Requests())
	assert.False(t, res.Trace.Attempted(TierAIIntent))
	assert.Equal(t, []string{"direct_match", "ai_intent", "pattern_fallback", "generic_response"}, res.Trace.Tiers())
	assert.Equal(t, OutcomeMatched, res.Trace[0].Outcome)
}

func TestResolve_FirstRuleWins(t *testing.T) {
	rules := []Rule{
		{Name: "first", Keywords: []string{"portfolio"}, Handler: "portfolio_view"},
		{Name: "second", Keywords: []string{"show portfolio"}, Handler: HandlerHelp},
	}
	r, err := NewResolver(Options{Rules: rules, Handlers: testHandlers}, logging.New(nil, "silent"))
	require.NoError(t, err)

	res := r.Resolve(context.Background(), "show portfolio", nil)
	assert.Equal(t, "first", res.Rule)
}

// --- Tier 2 ---

func TestResolve_AIIntent(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "```json\n" +
				`{"action":"search_companies","entities":["biotech","healthcare"],` +
				`"parameters":{"sectors":["biotech"],"exclude_sectors":["healthcare"],"country":"US"},"outputFormat":"table"}` +
				"\n```"}, nil
		},
	}
	r := newResolver(t, mock)

	cmd := "list top biotech companies in US (not healthcare), ranked by market cap"
	res := r.Resolve(context.Background(), cmd, userTurn(cmd))

	assert.Equal(t, TierAIIntent, res.Tier)
	assert.Equal(t, "search_companies", res.Handler)
	assert.Equal(t, []any{"healthcare"}, res.Intent.Parameters["exclude_sectors"])
	assert.Equal(t, "table", res.Intent.OutputFormat)
	assert.Equal(t, OutcomeSkipped, res.Trace[2].Outcome)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, llm.ToolChoiceNone, reqs[0].ToolChoice)
	assert.Contains(t, reqs[0].System, "- search_companies: does search_companies")
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, cmd, reqs[0].Messages[0].Content)
}

func TestResolve_TimeoutFallsBackToPatterns(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r, err := NewResolver(Options{
		Patterns:      DefaultPatterns(),
		Topics:        DefaultTopics(),
		Handlers:      testHandlers,
		Actions:       testActions(),
		Client:        mock,
		IntentTimeout: 20 * time.Millisecond,
	}, logging.New(nil, "silent"))
	require.NoError(t, err)

	res := r.Resolve(context.Background(), "what's the bitcoin and ETH price", nil)

	assert.Equal(t, TierPatternFallback, res.Tier)
	assert.Equal(t, "get_crypto_price", res.Handler)
	assert.Equal(t, []string{"bitcoin", "ethereum"}, res.Intent.Entities)
	assert.Equal(t, OutcomeFailed, res.Trace[1].Outcome)
	assert.Contains(t, res.Trace[1].Error, "deadline exceeded")
	assert.Equal(t, OutcomeMatched, res.Trace[2].Outcome)
	assert.Contains(t, res.Trace.String(), "pattern_fallback:matched(get_crypto_price)")
}

func TestResolve_NoProviderUsesPatterns(t *testing.T) {
	r := newResolver(t, nil)

	res := r.Resolve(context.Background(), "quote for NVDA and AAPL", nil)

	assert.Equal(t, TierPatternFallback, res.Tier)
	assert.Equal(t, "get_stock_quote", res.Handler)
	assert.Equal(t, []string{"NVDA", "AAPL"}, res.Intent.Entities)
	assert.Contains(t, res.Trace[1].Error, "no AI provider")
}

func TestResolve_PatternUnresolvedEndsInClarify(t *testing.T) {
	r := newResolver(t, nil)

	res := r.Resolve(context.Background(), "xyzzy plugh", nil)

	assert.Equal(t, TierGenericResponse, res.Tier)
	assert.Empty(t, res.Handler)
	assert.Equal(t, ClarifyMessage, res.Reply)
	assert.Equal(t, domain.ActionUnknown, res.Intent.Action)
	last := res.Trace[len(res.Trace)-1]
	assert.Equal(t, OutcomeUnresolved, last.Outcome)
}

func TestResolve_MalformedOutputSkipsPatterns(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if isClassify(req) {
				return &llm.CompletionResponse{Content: "I think you want companies!"}, nil
			}
			return &llm.CompletionResponse{Content: "Hello! Ask me about companies."}, nil
		},
	}
	r := newResolver(t, mock)

	res := r.Resolve(context.Background(), "good morning", userTurn("good morning"))

	assert.Equal(t, TierGenericResponse, res.Tier)
	assert.Equal(t, "conversation", res.Rule)
	assert.Equal(t, "Hello! Ask me about companies.", res.Reply)
	assert.Equal(t, OutcomeFailed, res.Trace[1].Outcome)
	assert.Equal(t, OutcomeSkipped, res.Trace[2].Outcome)
	assert.Len(t, mock.Requests(), 2)
}

func TestResolve_UnhandledActionRoutesByTopic(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: `{"action":"chat","entities":[],"parameters":{}}`}, nil
		},
	}
	r := newResolver(t, mock)

	res := r.Resolve(context.Background(), "how is the market today", nil)

	assert.Equal(t, TierGenericResponse, res.Tier)
	assert.Equal(t, HandlerAgent, res.Handler)
	assert.Equal(t, "topic:market", res.Rule)
	assert.Equal(t, "chat", res.Intent.Action)
	assert.Len(t, mock.Requests(), 1)
}

func TestResolve_ConversationFailureClarifies(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if isClassify(req) {
				return &llm.CompletionResponse{Content: `{"action":"chat"}`}, nil
			}
			return nil, errors.New("provider down")
		},
	}
	r := newResolver(t, mock)

	res := r.Resolve(context.Background(), "good evening", nil)
	assert.Equal(t, ClarifyMessage, res.Reply)
	assert.Contains(t, res.Trace[3].Error, "provider down")
}

// --- Construction ---

func TestNewResolver_RejectsUnknownHandlers(t *testing.T) {
	_, err := NewResolver(Options{
		Rules:    []Rule{{Name: "r", Keywords: []string{"x"}, Handler: "missing_rule"}},
		Patterns: []Pattern{{Keywords: []string{"y"}, Action: "missing_pattern"}},
		Topics:   []Topic{{Name: "t", Keywords: []string{"z"}, Handler: "missing_topic"}},
		Handlers: []string{"help"},
	}, logging.New(nil, "silent"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_rule")
	assert.Contains(t, err.Error(), "missing_pattern")
	assert.Contains(t, err.Error(), "missing_topic")
}

func TestDefaultsReferenceKnownHandlers(t *testing.T) {
	_, err := NewResolver(Options{
		Rules:    DefaultRules(),
		Patterns: DefaultPatterns(),
		Topics:   DefaultTopics(),
		Handlers: testHandlers,
	}, logging.New(nil, "silent"))
	assert.NoError(t, err)
}

// --- Parsing ---

func TestClassifierParse(t *testing.T) {
	c := NewClassifier(nil, testActions(), 0)

	tests := []struct {
		name   string
		raw    string
		action string
		reason string
	}{
		{"raw json", `{"action":"portfolio_view"}`, "portfolio_view", ""},
		{"fenced", "Sure:\n```json\n{\"action\": \"web_search\", \"parameters\": {\"query\": \"ai seed rounds\"}}\n```", "web_search", ""},
		{"surrounding prose", `Here you go {"action":"Search Companies"} hope it helps`, "search_companies", ""},
		{"not json", "search companies", "", "no JSON object"},
		{"broken json", `{"action": "search_companies",`, "", "no JSON object"},
		{"wrong types", `{"action":"search_companies","entities":"biotech"}`, "", "malformed JSON"},
		{"empty action", `{"action":""}`, "", "no action"},
		{"unknown literal", `{"action":"unknown"}`, "", "no action"},
		{"unlisted action", `{"action":"delete_everything"}`, "", "unknown action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch got := c.parse(tt.raw).(type) {
			case ParsedIntent:
				require.Empty(t, tt.reason, "expected failure, got %q", got.Intent.Action)
				assert.Equal(t, tt.action, got.Intent.Action)
			case TierFailure:
				require.NotEmpty(t, tt.reason, "unexpected failure: %s", got.Reason)
				assert.Contains(t, got.Reason, tt.reason)
				assert.Equal(t, tt.raw, got.Raw)
			}
		})
	}
}

func TestClassify_NoClient(t *testing.T) {
	_, err := NewClassifier(nil, nil, 0).Classify(context.Background(), "x", nil)
	assert.ErrorIs(t, err, llm.ErrNoProvider)
}

func TestExtractEntities(t *testing.T) {
	assert.Equal(t, []string{"bitcoin", "solana"}, extractEntities("get_crypto_price", "BTC vs sol, and bitcoin again"))
	assert.Equal(t, []string{"NVDA"}, extractEntities("get_stock_quote", "Quote NVDA for the US API"))
	assert.Nil(t, extractEntities("search_companies", "biotech"))
}

func TestTracePayload(t *testing.T) {
	tr := Trace{
		{Tier: TierDirectMatch, Outcome: OutcomeUnresolved, ElapsedMs: 0},
		{Tier: TierAIIntent, Outcome: OutcomeFailed, ElapsedMs: 12, Error: "timeout"},
		{Tier: TierPatternFallback, Outcome: OutcomeMatched, Action: "portfolio_view"},
	}
	p := tr.Payload()
	require.Len(t, p, 3)
	assert.Equal(t, "timeout", p[1]["error"])
	assert.NotContains(t, p[0], "error")
	assert.Equal(t, "direct_match:unresolved -> ai_intent:failed -> pattern_fallback:matched(portfolio_view)", tr.String())
}
