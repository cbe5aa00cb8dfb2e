// Package admin exposes the operator HTTP surface: runtime voice settings,
// live session inspection and control, workflow editing, and a per-session
// debug event stream over WebSocket.
//
// Every route sits behind bearer-token auth ([Auth]); session and workflow
// IDs taken from the path must match a strict identifier pattern so crafted
// paths never reach the registries.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/debugbus"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/session"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/workflow"
)

// idPattern constrains session and workflow identifiers in path parameters.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Handler serves the admin API. Construct with [New] and mount with
// [Handler.Register].
type Handler struct {
	auth      *Auth
	settings  *config.Runtime
	sessions  *session.Registry
	workflows *workflow.Registry
	buses     *debugbus.Registry
	log       *slog.Logger
}

// Config holds the dependencies for [New].
type Config struct {
	Auth      *Auth
	Settings  *config.Runtime
	Sessions  *session.Registry
	Workflows *workflow.Registry
	Buses     *debugbus.Registry
	Logger    *slog.Logger
}

// New creates an admin API handler.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		auth:      cfg.Auth,
		settings:  cfg.Settings,
		sessions:  cfg.Sessions,
		workflows: cfg.Workflows,
		buses:     cfg.Buses,
		log:       log,
	}
}

// Register mounts all admin routes on mux. The debug WebSocket performs its
// own auth so it can answer with a WS close code instead of a plain 401.
func (h *Handler) Register(mux *http.ServeMux) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return h.auth.Middleware(fn)
	}

	mux.Handle("GET /config", authed(h.getConfig))
	mux.Handle("PATCH /config", authed(h.patchConfig))
	mux.Handle("GET /sessions", authed(h.listSessions))
	mux.Handle("GET /sessions/{id}", authed(h.getSession))
	mux.Handle("GET /sessions/{id}/context", authed(h.getSessionContext))
	mux.Handle("POST /sessions/{id}/pause", authed(h.pauseSession))
	mux.Handle("POST /sessions/{id}/resume", authed(h.resumeSession))
	mux.Handle("GET /workflow/{id}", authed(h.getWorkflow))
	mux.Handle("PUT /workflow/{id}", authed(h.putWorkflow))
	mux.Handle("PATCH /workflow/{id}/states/{state_id}", authed(h.patchWorkflowState))
	mux.HandleFunc("GET /sessions/{id}/debug", h.debugSocket)
}

func (h *Handler) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Snapshot())
}

func (h *Handler) patchConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	s, err := h.settings.Patch(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Info("admin: runtime settings patched", "keys", len(patch))
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.sessions.List()
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot(false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.pathSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(false))
}

// getSessionContext exports the full debug context: detailed snapshot with
// step data, recent messages, and the complete event log.
func (h *Handler) getSessionContext(w http.ResponseWriter, r *http.Request) {
	s, ok := h.pathSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(true))
}

func (h *Handler) pauseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.pathSession(w, r)
	if !ok {
		return
	}
	s.Pause()
	h.log.Info("admin: session paused", "session_id", s.ID())
	writeJSON(w, http.StatusOK, map[string]any{"session_id": s.ID(), "paused": true})
}

func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.pathSession(w, r)
	if !ok {
		return
	}
	s.Resume()
	h.log.Info("admin: session resumed", "session_id", s.ID())
	writeJSON(w, http.StatusOK, map[string]any{"session_id": s.ID(), "paused": false})
}

func (h *Handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	wf, err := h.workflows.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *Handler) putWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var wf workflow.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.workflows.Replace(id, &wf); err != nil {
		writeWorkflowError(w, err)
		return
	}
	h.log.Info("admin: workflow replaced", "workflow_id", id)
	writeJSON(w, http.StatusOK, &wf)
}

func (h *Handler) patchWorkflowState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stateID, ok := pathID(w, r, "state_id")
	if !ok {
		return
	}
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	wf, err := h.workflows.PatchState(id, stateID, patch)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	h.log.Info("admin: workflow state patched", "workflow_id", id, "state_id", stateID)
	writeJSON(w, http.StatusOK, wf)
}

// pathSession resolves the {id} path parameter to a registered session,
// writing the error response itself when it cannot.
func (h *Handler) pathSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return nil, false
	}
	return s, true
}

// pathID reads and validates a path parameter against [idPattern].
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.PathValue(name)
	if !idPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid identifier")
		return "", false
	}
	return id, true
}

// writeWorkflowError maps registry errors to status codes: unknown IDs are
// 404, everything else (bad patches, failed validation) is 422.
func writeWorkflowError(w http.ResponseWriter, err error) {
	if errors.Is(err, workflow.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusUnprocessableEntity, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
