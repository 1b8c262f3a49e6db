package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/hooks"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/session"
)

const testToken = "test-token-123"

// fakeCommander echoes commands and announces them on response_ready the
// way the orchestrator does.
type fakeCommander struct {
	hooks *hooks.Manager

	mu        sync.Mutex
	seen      []domain.Command
	deadlines []time.Time
}

func (f *fakeCommander) Handle(ctx context.Context, cmd domain.Command) domain.Response {
	f.mu.Lock()
	f.seen = append(f.seen, cmd)
	if d, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, d)
	}
	f.mu.Unlock()

	sid := cmd.SessionID
	if sid == "" {
		sid = "minted-session"
	}
	if cmd.Text == "explode" {
		return domain.Response{Success: false, Message: "Something went wrong", SessionID: sid}
	}
	resp := domain.Response{
		Success:   true,
		Message:   "ran: " + cmd.Text,
		ToolsUsed: []string{},
		SessionID: sid,
	}
	if f.hooks != nil {
		f.hooks.EmitAsync(ctx, hooks.EventResponseReady, map[string]any{
			"sessionId": sid,
			"message":   resp.Message,
		})
	}
	return resp
}

func (f *fakeCommander) commands() []domain.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Command(nil), f.seen...)
}

func (f *fakeCommander) lastDeadline() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deadlines) == 0 {
		return time.Time{}, false
	}
	return f.deadlines[len(f.deadlines)-1], true
}

type staticTools []domain.ToolDefinition

func (s staticTools) Definitions() []domain.ToolDefinition { return s }

type testHarness struct {
	srv   *Server
	ts    *httptest.Server
	cmd   *fakeCommander
	store *session.Store
	hooks *hooks.Manager
}

func newTestServer(t *testing.T) *testHarness {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken

	log := logging.New(nil, "silent")
	hm := hooks.NewManager(log)
	cmd := &fakeCommander{hooks: hm}
	store := session.New(session.NewMemoryBackend(), log)
	raw := map[string]any{
		"gateway": map[string]any{
			"port": 18790,
			"auth": map[string]any{"token": testToken},
		},
		"logging": map[string]any{"level": "debug"},
	}

	srv := New(cfg, cmd, log,
		WithConfigRaw(raw),
		WithSessions(store),
		WithTools(staticTools{{Name: "check_api_keys", Description: "Report configured keys."}}),
		WithHooks(hm),
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.clients.CloseAll()
		ts.Close()
		hm.Wait()
	})
	return &testHarness{srv: srv, ts: ts, cmd: cmd, store: store, hooks: hm}
}

func mustRequest(t *testing.T, method, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connectParams(token string) ConnectParams {
	return ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: ClientInfo{
			ID:      "test-client",
			Name:    "dealflow terminal",
			Version: "1.0.0",
		},
		Auth: &ConnectAuth{Token: token},
	}
}

// dialAuthed completes the handshake and returns the open connection.
func dialAuthed(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, err := NewRequest("connect-1", "connect", connectParams(testToken))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK)
	return conn
}

// call sends an RPC request and returns its response, skipping events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

// --- HTTP ---

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status.
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	h := newTestServer(t)

	resp, err := http.Get(h.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

// --- WebSocket handshake ---

func TestWebSocketHandshakeSuccess(t *testing.T) {
	h := newTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(h.ts), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventChallenge, challenge.Event)

	req, err := NewRequest("req-1", "connect", connectParams(testToken))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	assert.Equal(t, FrameTypeResponse, helloResp.Type)
	assert.Equal(t, "req-1", helloResp.ID)
	require.NotNil(t, helloResp.OK)
	assert.True(t, *helloResp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(helloResp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{"config.get", "health", "session.get", "session.list", "terminal.command", "tools.list"}, hello.Features.Methods)
	assert.Contains(t, hello.Features.Events, EventTerminalResponse)
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	h := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "connect", connectParams("wrong"))
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	require.NotNil(t, errResp.OK)
	assert.False(t, *errResp.OK)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "unauthorized", errResp.Error.Code)
}

func TestWebSocketHandshakeRequiresConnect(t *testing.T) {
	h := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, CodeProtocol, errResp.Error.Code)
}

func TestWebSocketHandshakeProtocolMismatch(t *testing.T) {
	h := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	params := connectParams(testToken)
	params.MinProtocol, params.MaxProtocol = 2, 3
	req, _ := NewRequest("req-1", "connect", params)
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, CodeProtocol, errResp.Error.Code)
	assert.Contains(t, errResp.Error.Message, "protocol 1")
}

func TestWebSocketConnectResumesSession(t *testing.T) {
	h := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	params := connectParams(testToken)
	params.SessionID = "deal-review"
	req, _ := NewRequest("req-1", "connect", params)
	require.NoError(t, conn.WriteJSON(req))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	var hello HelloOK
	require.NoError(t, json.Unmarshal(helloResp.Payload, &hello))
	assert.Equal(t, "deal-review", hello.SessionID)

	call(t, conn, "c-1", "terminal.command", map[string]any{"command": "show my portfolio"})
	cmds := h.cmd.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "deal-review", cmds[0].SessionID)
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	h := newTestServer(t)
	conn := dialAuthed(t, h.ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"req","id":"bad-1"}`)))
	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "bad-1", errResp.ID)
	assert.Equal(t, CodeProtocol, errResp.Error.Code)

	resp := call(t, conn, "h-1", "health", nil)
	assert.True(t, *resp.OK)
}

// --- WebSocket RPC ---

func TestWebSocketRPCHealth(t *testing.T) {
	h := newTestServer(t)
	conn := dialAuthed(t, h.ts)

	resp := call(t, conn, "h-1", "health", nil)
	require.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
}

func TestWebSocketTerminalCommandKeepsSession(t *testing.T) {
	h := newTestServer(t)
	conn := dialAuthed(t, h.ts)

	first := call(t, conn, "c-1", "terminal.command", map[string]any{"command": "show my portfolio"})
	require.True(t, *first.OK)
	var r1 domain.Response
	require.NoError(t, json.Unmarshal(first.Payload, &r1))
	assert.Equal(t, "ran: show my portfolio", r1.Message)
	assert.Equal(t, "minted-session", r1.SessionID)

	call(t, conn, "c-2", "terminal.command", map[string]any{"command": "list tools"})

	cmds := h.cmd.commands()
	require.Len(t, cmds, 2)
	assert.Empty(t, cmds[0].SessionID)
	assert.Equal(t, "minted-session", cmds[1].SessionID)
}

func TestWebSocketBroadcastsResponses(t *testing.T) {
	h := newTestServer(t)
	listener := dialAuthed(t, h.ts)
	sender := dialAuthed(t, h.ts)
	// A round trip guarantees the listener is registered.
	call(t, listener, "h-1", "health", nil)

	call(t, sender, "c-1", "terminal.command", map[string]any{"command": "check api keys"})

	listener.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev Frame
	require.NoError(t, listener.ReadJSON(&ev))
	assert.Equal(t, FrameTypeEvent, ev.Type)
	assert.Equal(t, EventTerminalResponse, ev.Event)
	assert.Positive(t, ev.Seq)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "ran: check api keys", payload["message"])
}

func TestWebSocketRPCSessionGet(t *testing.T) {
	h := newTestServer(t)
	ctx := context.Background()
	sess, _ := h.store.LoadOrCreate(ctx, "s-7")
	h.store.AppendTurn(sess, domain.RoleUser, "hello")
	require.NoError(t, h.store.Save(ctx, sess))
	conn := dialAuthed(t, h.ts)

	resp := call(t, conn, "s-1", "session.get", map[string]any{"id": "s-7"})
	require.True(t, *resp.OK)
	var got domain.Session
	require.NoError(t, json.Unmarshal(resp.Payload, &got))
	assert.Len(t, got.Turns, 1)

	missing := call(t, conn, "s-2", "session.get", map[string]any{"id": "nope"})
	require.NotNil(t, missing.Error)
	assert.Equal(t, "not_found", missing.Error.Code)

	empty := call(t, conn, "s-3", "session.get", map[string]any{})
	require.NotNil(t, empty.Error)
	assert.Equal(t, "invalid_params", empty.Error.Code)

	list := call(t, conn, "s-4", "session.list", nil)
	require.True(t, *list.OK)
	assert.Contains(t, string(list.Payload), `"s-7"`)
}

func TestWebSocketRPCToolsList(t *testing.T) {
	h := newTestServer(t)
	conn := dialAuthed(t, h.ts)

	resp := call(t, conn, "t-1", "tools.list", nil)
	require.True(t, *resp.OK)
	assert.Contains(t, string(resp.Payload), "check_api_keys")
}

func TestWebSocketRPCConfigGet(t *testing.T) {
	h := newTestServer(t)
	conn := dialAuthed(t, h.ts)

	ok := call(t, conn, "g-1", "config.get", map[string]any{"key": "logging.level"})
	require.True(t, *ok.OK)
	assert.JSONEq(t, `{"key":"logging.level","value":"debug"}`, string(ok.Payload))

	denied := call(t, conn, "g-2", "config.get", map[string]any{"key": "gateway.auth.token"})
	require.NotNil(t, denied.Error)
	assert.Equal(t, "forbidden", denied.Error.Code)

	missing := call(t, conn, "g-3", "config.get", map[string]any{"key": "session.dir"})
	require.NotNil(t, missing.Error)
	assert.Equal(t, "not_found", missing.Error.Code)

	empty := call(t, conn, "g-4", "config.get", map[string]any{})
	require.NotNil(t, empty.Error)
	assert.Equal(t, "invalid_params", empty.Error.Code)
}

func TestWebSocketRPCUnknownMethod(t *testing.T) {
	h := newTestServer(t)
	conn := dialAuthed(t, h.ts)

	resp := call(t, conn, "u-1", "chat.send", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

// --- Lifecycle ---

func TestResolveBindAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18790", resolveBindAddr(config.GatewayConfig{Bind: "loopback", Port: 18790}))
	assert.Equal(t, "0.0.0.0:18790", resolveBindAddr(config.GatewayConfig{Bind: "lan", Port: 18790}))
}

func TestServerStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := config.Defaults()
	cfg.Gateway.Port = port
	cfg.Gateway.Auth.Token = testToken
	log := logging.New(nil, "silent")
	hm := hooks.NewManager(log)

	var mu sync.Mutex
	var events []string
	for _, ev := range []string{hooks.EventGatewayStart, hooks.EventGatewayStop} {
		hm.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			events = append(events, p.Event)
			mu.Unlock()
			return nil
		})
	}

	srv := New(cfg, &fakeCommander{}, log, WithHooks(hm))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + resolveBindAddr(cfg.Gateway) + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
	mu.Unlock()
}
