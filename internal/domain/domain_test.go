package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Role tests ---

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{Role("system"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Valid())
		})
	}
}

// --- Session tests ---

func TestNewSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("abc", now)

	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, now, s.CreatedAt)
	assert.Equal(t, now, s.LastUpdated)
	assert.NotNil(t, s.Turns)
	assert.Empty(t, s.Turns)
	assert.False(t, s.Ephemeral)
}

func TestSessionHistoryIsCopy(t *testing.T) {
	s := NewSession("abc", time.Now())
	s.Turns = append(s.Turns, Turn{Role: RoleUser, Content: "hi"})

	h := s.History()
	h[0].Content = "changed"

	assert.Equal(t, "hi", s.Turns[0].Content)
}

func TestSessionJSONOmitsEphemeral(t *testing.T) {
	s := NewSession("abc", time.Now().UTC())
	s.Ephemeral = true

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Ephemeral")
	assert.Contains(t, string(data), `"turns":[]`)
}

// --- Intent tests ---

func TestNewIntentDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, ActionUnknown, NewIntent("").Action)
	assert.Equal(t, "search_companies", NewIntent("search_companies").Action)
}

func TestIntentParam(t *testing.T) {
	i := NewIntent("x")
	i.Parameters["sector"] = "biotech"
	i.Parameters["limit"] = 10

	assert.Equal(t, "biotech", i.Param("sector"))
	assert.Equal(t, "", i.Param("limit"))
	assert.Equal(t, "", i.Param("missing"))
	assert.Equal(t, "", Intent{}.Param("sector"))
}

// --- ToolResult tests ---

func TestFailedHasMessage(t *testing.T) {
	r := Failed("Unknown tool: nope")
	assert.False(t, r.Success)
	assert.Equal(t, "Unknown tool: nope", r.Message)
	assert.Equal(t, "Unknown tool: nope", r.Error)
}

func TestToolResultJSON_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(Succeeded("ok", nil))
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "data")
	assert.NotContains(t, raw, "error")
	assert.NotContains(t, raw, "display")
}

// --- Response tests ---

func TestResponseJSONShape(t *testing.T) {
	resp := Response{
		Success:   true,
		Message:   "done",
		ToolsUsed: []string{"search_companies"},
		SessionID: "s-1",
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "s-1", raw["sessionId"])
	assert.Equal(t, []any{"search_companies"}, raw["toolsUsed"])
	assert.NotContains(t, raw, "conversationContext")
}

func TestCommandJSON(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"command":"check api keys","sessionId":"s-2","context":{"view":"terminal"}}`), &cmd))

	assert.Equal(t, "check api keys", cmd.Text)
	assert.Equal(t, "s-2", cmd.SessionID)
	assert.Equal(t, "terminal", cmd.Context["view"])
}

func TestEventKinds(t *testing.T) {
	assert.Len(t, EventKinds, 4)
	assert.Contains(t, EventKinds, EventRouting)
}
