package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/httpclient"
	"github.com/soyeahso/dealflow/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func searchTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "search_companies",
		Description: "Search the company database.",
		ParameterSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sector": map[string]any{"type": "string"},
			},
			"required": []any{"sector"},
		},
	}
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("openai", &MockClient{ProviderName: "openai"})

	client, err := reg.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("anthropic", &MockClient{ProviderName: "anthropic"})
	reg.Alias("sonnet", "anthropic")

	client, err := reg.Resolve("sonnet")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("ollama", &MockClient{ProviderName: "ollama"})
	reg.SetFallback("ollama")

	client, err := reg.Resolve("unknown-model-xyz")
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no AI provider")
	assert.True(t, reg.Empty())
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("b", &MockClient{ProviderName: "b"})
	reg.Register("a", &MockClient{ProviderName: "a"})

	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	tests := []struct {
		name string
		cfg  config.AIConfig
		want []string
	}{
		{"none", config.AIConfig{Provider: "none"}, []string{}},
		{"openai with key", config.AIConfig{Provider: "openai", APIKey: "sk-test"}, []string{"openai"}},
		{"openai without key", config.AIConfig{Provider: "openai"}, []string{}},
		{"ollama needs no key", config.AIConfig{Provider: "ollama"}, []string{"ollama"}},
		{
			"fallbacks",
			config.AIConfig{Provider: "openai", APIKey: "sk-test", Fallbacks: []string{"anthropic", "ollama", "openai"}},
			[]string{"ollama", "openai"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistryFromConfig(tt.cfg, silentLog())
			assert.Equal(t, tt.want, reg.List())
		})
	}
}

func TestNewRegistryFromConfig_FallbackKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	reg := NewRegistryFromConfig(config.AIConfig{Provider: "openai", APIKey: "sk", Fallbacks: []string{"anthropic"}}, silentLog())
	assert.Equal(t, []string{"anthropic", "openai"}, reg.List())

	client, err := reg.Resolve("sonnet")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
}

// --- Failover tests ---

func TestFailoverMovesOnRetryable(t *testing.T) {
	reg := NewRegistry(silentLog())
	primary := &MockClient{
		ProviderName: "openai",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, &ProviderError{Provider: "openai", Message: "rate limited", Code: 429}
		},
	}
	backup := &MockClient{ProviderName: "anthropic"}
	reg.Register("openai", primary)
	reg.Register("anthropic", backup)

	fc := NewFailoverClient(reg, "openai", []string{"anthropic"}, silentLog())
	resp, err := fc.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	assert.Len(t, primary.Requests(), 1)
	assert.Len(t, backup.Requests(), 1)
	assert.Equal(t, "openai", fc.Name())
}

func TestFailoverStopsOnPermanentError(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("openai", &MockClient{
		ProviderName: "openai",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, &ProviderError{Provider: "openai", Message: "bad request", Code: 400}
		},
	})
	backup := &MockClient{ProviderName: "anthropic"}
	reg.Register("anthropic", backup)

	fc := NewFailoverClient(reg, "openai", []string{"anthropic"}, silentLog())
	_, err := fc.Complete(context.Background(), CompletionRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 400, pe.Code)
	assert.Empty(t, backup.Requests())
}

func TestFailoverEmptyRegistry(t *testing.T) {
	fc := NewFailoverClient(NewRegistry(silentLog()), "openai", nil, silentLog())
	_, err := fc.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestFailoverSkipsDuplicateResolution(t *testing.T) {
	reg := NewRegistry(silentLog())
	calls := 0
	reg.Register("openai", &MockClient{
		ProviderName: "openai",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			calls++
			return nil, &ProviderError{Provider: "openai", Code: 503, Message: "unavailable"}
		},
	})
	reg.SetFallback("openai")

	fc := NewFailoverClient(reg, "openai", []string{"missing"}, silentLog())
	_, err := fc.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// --- Error tests ---

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &ProviderError{Code: 429}, true},
		{"503", &ProviderError{Code: 503}, true},
		{"400", &ProviderError{Code: 400, Message: "bad"}, false},
		{"overloaded text", errors.New("model overloaded"), true},
		{"plain", errors.New("boom"), false},
		{"wrapped", fmt.Errorf("call: %w", &ProviderError{Code: 500}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	err := wrapError("ollama", &httpclient.StatusError{Code: 502, Body: "bad gateway"})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 502, pe.Code)
	assert.Equal(t, "ollama: 502 bad gateway", pe.Error())

	assert.ErrorIs(t, wrapError("x", context.Canceled), context.Canceled)
	assert.NoError(t, wrapError("x", nil))
}

func TestProviderErrorFormat(t *testing.T) {
	tests := []struct {
		err  ProviderError
		want string
	}{
		{ProviderError{Provider: "a", Message: "fail", Code: 500}, "a: 500 fail"},
		{ProviderError{Provider: "b", Message: "oops"}, "b: oops"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

// --- Ollama tests ---

func TestOllamaComplete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "llama3.1",
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "search_companies", "arguments": {"sector": "biotech"}}}
			]},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 12,
			"eval_count": 7
		}`))
	}))
	defer srv.Close()

	temp := 0.2
	client := NewOllamaClient(srv.URL+"/", "", silentLog())
	resp, err := client.Complete(context.Background(), CompletionRequest{
		System:      "You are a CRM assistant.",
		Messages:    []Message{{Role: RoleUser, Content: "find biotech"}},
		Tools:       []domain.ToolDefinition{searchTool()},
		MaxTokens:   256,
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultOllamaModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "search_companies", got.Tools[0].Function.Name)
	assert.InDelta(t, 0.2, got.Options["temperature"], 0.0001)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search_companies", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"sector":"biotech"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
}

func TestOllamaCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "missing", silentLog())
	_, err := client.Complete(context.Background(), CompletionRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 404, pe.Code)
	assert.False(t, IsRetryable(err))
}

func TestOllamaToolChoiceNoneDropsTools(t *testing.T) {
	client := NewOllamaClient("", "", silentLog())
	body := client.buildRequest(CompletionRequest{Tools: []domain.ToolDefinition{searchTool()}, ToolChoice: ToolChoiceNone})
	assert.Empty(t, body.Tools)
	assert.Nil(t, body.Options)
}

// --- Request building ---

func TestOpenAIBuildParams(t *testing.T) {
	temp := 0.7
	client := NewOpenAIClient("sk-test", "", "")
	params := client.buildParams(CompletionRequest{
		System: "sys",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
		Tools:       []domain.ToolDefinition{searchTool()},
		ToolChoice:  ToolChoiceAuto,
		MaxTokens:   100,
		Temperature: &temp,
	})

	assert.Equal(t, DefaultOpenAIModel, params.Model)
	assert.Len(t, params.Messages, 3)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "search_companies", params.Tools[0].Function.Name)
	assert.Equal(t, int64(100), params.MaxCompletionTokens.Value)
	assert.InDelta(t, 0.7, params.Temperature.Value, 0.0001)
	assert.Equal(t, "auto", params.ToolChoice.OfAuto.Value)
}

func TestAnthropicBuildParams(t *testing.T) {
	client := NewAnthropicClient("sk-ant", "", "")
	params := client.buildParams(CompletionRequest{
		Model:    "claude-haiku-4-5",
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: ""}},
		Tools:    []domain.ToolDefinition{searchTool()},
	})

	assert.Equal(t, "claude-haiku-4-5", string(params.Model))
	assert.Equal(t, int64(defaultAnthropicMaxTokens), params.MaxTokens)
	assert.Len(t, params.Messages, 1)
	require.Len(t, params.System, 1)
	assert.Equal(t, "sys", params.System[0].Text)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, "search_companies", params.Tools[0].OfTool.Name)
	assert.Equal(t, []string{"sector"}, params.Tools[0].OfTool.InputSchema.Required)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields([]string{"a"}))
	assert.Equal(t, []string{"a", "b"}, requiredFields([]any{"a", 1, "b"}))
	assert.Nil(t, requiredFields(nil))
}

func TestMessagesFromTurns(t *testing.T) {
	msgs := MessagesFromTurns([]domain.Turn{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	})
	assert.Equal(t, []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}}, msgs)
}

func TestMockClientRecordsRequests(t *testing.T) {
	mock := &MockClient{ProviderName: "default"}
	resp, err := mock.Complete(context.Background(), CompletionRequest{System: "s"})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	require.Len(t, mock.Requests(), 1)
	assert.Equal(t, "s", mock.Requests()[0].System)
}

func TestGeminiConfig(t *testing.T) {
	temp := 0.2
	cfg := geminiConfig(CompletionRequest{
		System:      "sys",
		Tools:       []domain.ToolDefinition{searchTool()},
		ToolChoice:  ToolChoiceRequired,
		MaxTokens:   64,
		Temperature: &temp,
	})

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, int32(64), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 0.0001)
	require.Len(t, cfg.Tools, 1)
	require.Len(t, cfg.Tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "search_companies", cfg.Tools[0].FunctionDeclarations[0].Name)
	assert.Equal(t, genai.FunctionCallingConfigModeAny, cfg.ToolConfig.FunctionCallingConfig.Mode)

	plain := geminiConfig(CompletionRequest{Tools: []domain.ToolDefinition{searchTool()}, ToolChoice: ToolChoiceNone})
	assert.Empty(t, plain.Tools)
	assert.Nil(t, plain.ToolConfig)
}

func TestGeminiContents(t *testing.T) {
	contents := geminiContents([]Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleAssistant, Content: "a"},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", string(contents[0].Role))
	assert.Equal(t, "model", string(contents[1].Role))
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient("", "")
	assert.Error(t, err)
}
