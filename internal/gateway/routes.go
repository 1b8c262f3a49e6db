package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/session"
)

// maxCommandBody bounds the JSON body of a terminal command.
const maxCommandBody = 1 << 20

// readableConfigPrefixes lists config paths config.get may read. Everything
// else, including all credentials, is denied.
var readableConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
	"session",
	"telemetry",
	"orchestrator",
	"synthesis",
	"chat",
	"tools",
	"files",
	"companies",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range readableConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler with every route and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(s.cfg.Gateway.ControlUI.AllowedOrigins))
	r.Use(loggingMiddleware(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/terminal/command", s.handleCommand)
		r.Get("/sessions", s.handleSessionList)
		r.Get("/sessions/{id}", s.handleSessionGet)
		r.Get("/tools", s.handleToolList)
	})

	r.NotFound(handleNotFound)
	return r
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("terminal.command", s.rpcTerminalCommand)
	s.Handle("session.get", s.rpcSessionGet)
	s.Handle("session.list", s.rpcSessionList)
	s.Handle("tools.list", s.rpcToolsList)
	s.Handle("config.get", s.rpcConfigGet)
}

// runCommand applies the request deadline and hands the command to the
// orchestrator.
func (s *Server) runCommand(ctx context.Context, cmd domain.Command) domain.Response {
	if d := s.cfg.Gateway.RequestTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return s.commander.Handle(ctx, cmd)
}

// HTTP handlers

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd domain.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := dec.Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command body: "+err.Error())
		return
	}

	resp := s.runCommand(r.Context(), cmd)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": []any{}})
		return
	}
	list, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, code, err := s.lookupSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.toolDefinitions()})
}

func (s *Server) lookupSession(ctx context.Context, id string) (*domain.Session, int, error) {
	if s.sessions == nil {
		return nil, http.StatusNotFound, session.ErrNotFound
	}
	sess, err := s.sessions.Get(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil, http.StatusNotFound, err
	case err != nil:
		return nil, http.StatusServiceUnavailable, err
	}
	return sess, http.StatusOK, nil
}

func (s *Server) toolDefinitions() []domain.ToolDefinition {
	if s.tools == nil {
		return []domain.ToolDefinition{}
	}
	return s.tools.Definitions()
}

// RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	})
}

func (s *Server) rpcTerminalCommand(rc *RequestContext) {
	var cmd domain.Command
	if err := rc.Params(&cmd); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if cmd.SessionID == "" {
		cmd.SessionID = rc.Client.SessionID()
	}
	resp := s.runCommand(rc.Ctx, cmd)
	if resp.SessionID != "" {
		rc.Client.SetSessionID(resp.SessionID)
	}
	rc.Respond(resp)
}

type sessionGetParams struct {
	ID string `json:"id"`
}

func (s *Server) rpcSessionGet(rc *RequestContext) {
	var p sessionGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	sess, code, err := s.lookupSession(rc.Ctx, p.ID)
	if err != nil {
		if code == http.StatusNotFound {
			rc.RespondError(CodeNotFound, "session not found: "+p.ID)
		} else {
			rc.RespondError(CodeUnavailable, err.Error())
		}
		return
	}
	rc.Respond(sess)
}

func (s *Server) rpcSessionList(rc *RequestContext) {
	if s.sessions == nil {
		rc.Respond(map[string]any{"sessions": []any{}})
		return
	}
	list, err := s.sessions.List(rc.Ctx)
	if err != nil {
		rc.RespondError(CodeUnavailable, err.Error())
		return
	}
	rc.Respond(map[string]any{"sessions": list})
}

func (s *Server) rpcToolsList(rc *RequestContext) {
	rc.Respond(map[string]any{"tools": s.toolDefinitions()})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}

	path, err := parseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	val, ok := valueAtPath(s.configRaw, path)
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

func parseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, ErrEmptyConfigPath
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, ErrEmptyConfigPath
		}
	}
	return parts, nil
}

func valueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, true
}
