package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/llm"
	"github.com/soyeahso/dealflow/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func calls(names ...string) []domain.ToolCall {
	out := make([]domain.ToolCall, len(names))
	for i, n := range names {
		out[i] = domain.ToolCall{ToolName: n}
	}
	return out
}

func TestSynthesize_NoToolsReturnsDirectText(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock"}
	s := New(mock, Options{}, silentLog())

	out := s.Synthesize(context.Background(), Input{Command: "hi", DirectText: "Hello there."})

	assert.Equal(t, "Hello there.", out.Message)
	assert.Equal(t, ModeDirect, out.Mode)
	assert.Empty(t, mock.Requests())
}

func TestSynthesize_DisplayPassthrough(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock"}
	s := New(mock, Options{}, silentLog())

	table := "Top 2 companies:\n\n| # | Company |\n| 1 | Vertex |\n| 2 | Moderna |"
	out := s.Synthesize(context.Background(), Input{
		Command: "top biotech",
		Calls:   calls("search_companies"),
		Results: []domain.ToolResult{{Success: true, Message: "Found 2", Display: table}},
	})

	assert.Equal(t, table, out.Message)
	assert.Equal(t, ModeDisplay, out.Mode)
	assert.Empty(t, mock.Requests())
}

func TestSynthesize_MultipleDisplaysJoinedInOrder(t *testing.T) {
	s := New(nil, Options{}, silentLog())

	out := s.Synthesize(context.Background(), Input{
		Calls: calls("a", "b", "c"),
		Results: []domain.ToolResult{
			{Success: true, Display: "first"},
			{Success: true, Message: "plain"},
			{Success: true, Display: "third"},
		},
	})
	assert.Equal(t, "first\n\nb: plain\n\nthird", out.Message)
	assert.Equal(t, ModeDisplay, out.Mode)
}

func TestSynthesize_DisplayKeepsFailures(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock"}
	s := New(mock, Options{}, silentLog())

	out := s.Synthesize(context.Background(), Input{
		Command: "top biotech and nvda price",
		Calls:   calls("search_companies", "get_stock_quote"),
		Results: []domain.ToolResult{
			{Success: true, Display: "| 1 | Vertex |"},
			domain.Failed("OpenBB not configured"),
		},
	})

	assert.Equal(t, ModeDisplay, out.Mode)
	assert.Equal(t, "| 1 | Vertex |\n\nget_stock_quote: OpenBB not configured", out.Message)
	assert.Empty(t, mock.Requests())
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := "Zürich"
	assert.Equal(t, "Z", truncate(s, 2))
	assert.Equal(t, "Zü", truncate(s, 3))
	assert.Equal(t, s, truncate(s, 100))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("€", 10), 7)))
}

func TestSynthesize_CallsAIWithBudget(t *testing.T) {
	temp := 0.2
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "NVDA trades at $120.50."}, nil
		},
	}
	s := New(mock, Options{MaxTokens: 4096, Temperature: &temp}, silentLog())

	out := s.Synthesize(context.Background(), Input{
		Command: "nvda price",
		Calls:   calls("get_stock_quote"),
		Results: []domain.ToolResult{{Success: true, Message: "NVDA 120.50 USD", Data: map[string]any{"price": 120.5}}},
	})

	assert.Equal(t, "NVDA trades at $120.50.", out.Message)
	assert.Equal(t, ModeSynthesized, out.Mode)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 4096, reqs[0].MaxTokens)
	assert.Equal(t, 0.2, *reqs[0].Temperature)
	assert.Contains(t, reqs[0].Messages[0].Content, "Command: nvda price")
	assert.Contains(t, reqs[0].Messages[0].Content, `"get_stock_quote"`)
	assert.Contains(t, reqs[0].Messages[0].Content, `"price": 120.5`)
}

func TestSynthesize_FailureFallsBackToSummary(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("overloaded")
		},
	}
	s := New(mock, Options{}, silentLog())

	out := s.Synthesize(context.Background(), Input{
		Calls: calls("get_stock_quote", "nope"),
		Results: []domain.ToolResult{
			{Success: true, Message: "NVDA 120.50 USD"},
			domain.Failed("Unknown tool: nope"),
		},
	})

	assert.Equal(t, ModeSummary, out.Mode)
	assert.Equal(t, "get_stock_quote: NVDA 120.50 USD\nnope: Unknown tool: nope", out.Message)
	assert.EqualError(t, out.Err, "overloaded")
}

func TestSynthesize_NoProviderSummarizes(t *testing.T) {
	s := New(nil, Options{}, silentLog())

	out := s.Synthesize(context.Background(), Input{
		Calls:   calls("web_search"),
		Results: []domain.ToolResult{domain.Failed("web search is not configured (set TAVILY_API_KEY)")},
	})
	assert.Equal(t, "web_search: web search is not configured (set TAVILY_API_KEY)", out.Message)
	assert.ErrorIs(t, out.Err, llm.ErrNoProvider)
}

func TestSynthesize_EmptyAIReplySummarizes(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "  \n"}, nil
		},
	}
	s := New(mock, Options{}, silentLog())

	out := s.Synthesize(context.Background(), Input{
		Calls:   calls("portfolio_add"),
		Results: []domain.ToolResult{{Success: true}},
	})
	assert.Equal(t, "portfolio_add: done", out.Message)
}
