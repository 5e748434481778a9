// ABOUTME: HTTP API handlers for the plugin catalog, installer, and live sessions.
// ABOUTME: Acknowledgements stream to clients over SSE from GET /api/sessions/{id}/acks.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/altair-gateway/internal/plugins"
	"github.com/2389/altair-gateway/internal/session"
	"github.com/2389/altair-gateway/internal/store"
)

// maxArchiveSize bounds uploaded plugin archives.
const maxArchiveSize = 32 << 20

// defaultInstallLimit is the number of audit entries GET /api/installs returns.
const defaultInstallLimit = 50

// SetEnabledRequest is the JSON request body for PUT /api/plugins/{id}/enabled.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// InstallRequest is the JSON request body for repository installs.
type InstallRequest struct {
	URL string `json:"url"`
}

// CreatePluginRequest is the JSON request body for POST /api/plugins.
type CreatePluginRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
}

// ListPluginsResponse is the JSON response for GET /api/plugins.
type ListPluginsResponse struct {
	Plugins []plugins.Info `json:"plugins"`
}

// SessionResponse is the JSON response for session creation and lookup.
type SessionResponse struct {
	ID        string               `json:"id"`
	CreatedAt string               `json:"created_at"`
	Config    *session.ModelConfig `json:"config"`
}

// InvocationResponse describes one handler run in a dispatch cycle.
type InvocationResponse struct {
	PluginID     string `json:"plugin_id"`
	Capability   string `json:"capability"`
	InvocationID string `json:"invocation_id"`
	Output       string `json:"output,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ToolCallResponse is the JSON response for POST /api/sessions/{id}/toolcall.
// Acknowledgements are not included; they arrive on the ack stream.
type ToolCallResponse struct {
	Invocations []InvocationResponse `json:"invocations"`
	Errors      []InvocationResponse `json:"errors,omitempty"`
	Duplicates  []string             `json:"duplicates,omitempty"`
}

// PreferenceResponse is a stored enabled flag.
type PreferenceResponse struct {
	PluginID  string `json:"plugin_id"`
	Enabled   bool   `json:"enabled"`
	UpdatedAt string `json:"updated_at"`
}

// DedupeResponse reports redelivery cache activity.
type DedupeResponse struct {
	Size       int    `json:"size"`
	Duplicates uint64 `json:"duplicates"`
	Evicted    uint64 `json:"evicted"`
	Expired    uint64 `json:"expired"`
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Plugins     int                  `json:"plugins"`
	Sessions    int                  `json:"sessions"`
	Installed   []string             `json:"installed"`
	Preferences []PreferenceResponse `json:"preferences"`
	Dedupe      DedupeResponse       `json:"dedupe"`
}

// InstallEventResponse is one entry of GET /api/installs.
type InstallEventResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind,omitempty"`
	Source    string `json:"source"`
	PluginID  string `json:"plugin_id,omitempty"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Digest    string `json:"digest,omitempty"`
	CreatedAt string `json:"created_at"`
}

// TodoListResponse is the JSON response for GET /api/todos.
type TodoListResponse struct {
	Name      string           `json:"name"`
	Items     []store.TodoItem `json:"items"`
	UpdatedAt string           `json:"updated_at,omitempty"`
}

// TimerResponse is one entry of GET /api/timers.
type TimerResponse struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	DurationSeconds  int    `json:"duration_seconds"`
	StartedAt        string `json:"started_at"`
	EndsAt           string `json:"ends_at"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// handleListPlugins handles GET /api/plugins.
func (g *Gateway) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	state, err := g.aggregator.States(r.Context())
	if err != nil {
		g.sendError(w, err)
		return
	}

	resp := ListPluginsResponse{Plugins: make([]plugins.Info, 0, g.registry.Len())}
	for _, p := range g.registry.List() {
		resp.Plugins = append(resp.Plugins, p.Info(g.registry.IsBuiltin(p.ID), state.Enabled(p.ID)))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleGetPlugin handles GET /api/plugins/{id}.
func (g *Gateway) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	info, err := g.pluginInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, info)
}

func (g *Gateway) pluginInfo(ctx context.Context, id string) (plugins.Info, error) {
	p, ok := g.registry.Lookup(id)
	if !ok {
		return plugins.Info{}, &plugins.NotFoundError{ID: id}
	}
	state, err := g.aggregator.States(ctx)
	if err != nil {
		return plugins.Info{}, err
	}
	return p.Info(g.registry.IsBuiltin(id), state.Enabled(id)), nil
}

// handleSetEnabled handles PUT /api/plugins/{id}/enabled.
func (g *Gateway) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		g.sendJSONError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	id := r.PathValue("id")
	if err := g.aggregator.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		g.sendError(w, err)
		return
	}

	info, err := g.pluginInfo(r.Context(), id)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, info)
}

// handleUninstall handles DELETE /api/plugins/{id}. The plugin's stored
// preference is cleared so a later reinstall starts enabled.
func (g *Gateway) handleUninstall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := g.installer.Uninstall(id); err != nil {
		g.sendError(w, err)
		return
	}
	if err := g.store.DeletePluginPreference(r.Context(), id); err != nil {
		g.logger.Warn("failed to clear plugin preference", "plugin_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreatePlugin handles POST /api/plugins: a template-cloned plugin with
// the given metadata is built and registered.
func (g *Gateway) handleCreatePlugin(w http.ResponseWriter, r *http.Request) {
	var req CreatePluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := g.installer.CreatePluginStructure(req.ID, plugins.Metadata{
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Author:      req.Author,
	})
	if err != nil {
		g.sendError(w, err)
		return
	}
	if err := g.registry.Register(p); err != nil {
		g.sendError(w, err)
		return
	}

	info, err := g.pluginInfo(r.Context(), p.ID)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, info)
}

// handleInstall handles POST /api/plugins/install. A multipart upload with a
// "file" part installs an archive; a JSON body {"url": ...} installs from a
// repository.
func (g *Gateway) handleInstall(w http.ResponseWriter, r *http.Request) {
	desc, err := g.parseInstallRequest(w, r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := g.installer.InstallFromPackage(r.Context(), desc)
	if err != nil {
		g.sendError(w, err)
		return
	}

	info, err := g.pluginInfo(r.Context(), p.ID)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, info)
}

func (g *Gateway) parseInstallRequest(w http.ResponseWriter, r *http.Request) (plugins.PackageDescriptor, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxArchiveSize+1<<20)
		if err := r.ParseMultipartForm(maxArchiveSize); err != nil {
			return plugins.PackageDescriptor{}, fmt.Errorf("invalid multipart body: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return plugins.PackageDescriptor{}, errors.New("multipart body must include a file part")
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxArchiveSize))
		if err != nil {
			return plugins.PackageDescriptor{}, fmt.Errorf("reading archive: %w", err)
		}
		return plugins.ArchivePackage(header.Filename, data), nil
	}

	var req InstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return plugins.PackageDescriptor{}, errors.New("invalid JSON body")
	}
	if req.URL == "" {
		return plugins.PackageDescriptor{}, errors.New("url is required")
	}
	return plugins.RepositoryPackage(req.URL), nil
}

// handleListInstalls handles GET /api/installs?limit=N.
func (g *Gateway) handleListInstalls(w http.ResponseWriter, r *http.Request) {
	limit := defaultInstallLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := g.store.ListInstallEvents(r.Context(), limit)
	if err != nil {
		g.sendError(w, err)
		return
	}

	resp := make([]InstallEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, InstallEventResponse{
			ID:        ev.ID,
			Kind:      ev.Kind,
			Source:    ev.Source,
			PluginID:  ev.PluginID,
			State:     ev.State,
			Error:     ev.Error,
			Digest:    ev.Digest,
			CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		})
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"installs": resp})
}

// handleModelConfig handles GET /api/model/config.
func (g *Gateway) handleModelConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := g.sessions.ModelConfig(r.Context())
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, cfg)
}

// handleGuidance handles GET /api/guidance. With ?format=html the briefing
// is rendered as HTML, one paragraph per line.
func (g *Gateway) handleGuidance(w http.ResponseWriter, r *http.Request) {
	state, err := g.aggregator.States(r.Context())
	if err != nil {
		g.sendError(w, err)
		return
	}
	text := g.aggregator.BuildGuidance(state)

	switch r.URL.Query().Get("format") {
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, text)
	case "html":
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(guidanceMarkdown(text)), &buf); err != nil {
			g.logger.Error("failed to convert guidance", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	default:
		g.sendJSONError(w, http.StatusBadRequest, "format must be text or html")
	}
}

// guidanceMarkdown turns each non-empty guidance line into its own paragraph.
func guidanceMarkdown(text string) string {
	var paras []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paras = append(paras, line)
		}
	}
	return strings.Join(paras, "\n\n") + "\n"
}

// handleGetTodos handles GET /api/todos?list=NAME.
func (g *Gateway) handleGetTodos(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("list")
	if name == "" {
		name = store.DefaultTodoList
	}
	resp := TodoListResponse{Name: name, Items: []store.TodoItem{}}
	list, err := g.store.GetTodoList(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		g.sendError(w, err)
		return
	default:
		if list.Items != nil {
			resp.Items = list.Items
		}
		resp.UpdatedAt = list.UpdatedAt.Format(time.RFC3339)
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleListTimers handles GET /api/timers.
func (g *Gateway) handleListTimers(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	timers, err := g.store.ListActiveTimers(r.Context(), now)
	if err != nil {
		g.sendError(w, err)
		return
	}

	resp := make([]TimerResponse, 0, len(timers))
	for _, t := range timers {
		resp = append(resp, TimerResponse{
			ID:               t.ID,
			Label:            t.Label,
			DurationSeconds:  t.DurationSeconds,
			StartedAt:        t.StartedAt.Format(time.RFC3339),
			EndsAt:           t.EndsAt().Format(time.RFC3339),
			RemainingSeconds: int(t.Remaining(now).Seconds()),
		})
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"timers": resp})
}

// handleListSessions handles GET /api/sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{"sessions": g.sessions.List()})
}

// handleCreateSession handles POST /api/sessions.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := g.sessions.Create(r.Context())
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, sessionResponse(s))
}

// handleGetSession handles GET /api/sessions/{id}.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := g.sessions.Get(r.PathValue("id"))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, sessionResponse(s))
}

func sessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		Config:    s.Config,
	}
}

// handleCloseSession handles DELETE /api/sessions/{id}.
func (g *Gateway) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := g.sessions.Close(r.PathValue("id")); err != nil {
		g.sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToolCall handles POST /api/sessions/{id}/toolcall. Handlers run
// before the response is written; acknowledgements follow on the ack stream.
func (g *Gateway) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var call plugins.ToolCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	report, err := g.sessions.HandleToolCall(r.PathValue("id"), call)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusAccepted, toolCallResponse(report))
}

func toolCallResponse(report *plugins.DispatchReport) ToolCallResponse {
	resp := ToolCallResponse{
		Invocations: make([]InvocationResponse, 0, len(report.Invocations)),
		Duplicates:  report.Duplicates,
	}
	for _, inv := range report.Invocations {
		resp.Invocations = append(resp.Invocations, InvocationResponse{
			PluginID:     inv.PluginID,
			Capability:   inv.Capability,
			InvocationID: inv.InvocationID,
			Output:       inv.Output,
		})
	}
	for _, herr := range report.Errors {
		resp.Errors = append(resp.Errors, InvocationResponse{
			PluginID:     herr.PluginID,
			Capability:   herr.Capability,
			InvocationID: herr.InvocationID,
			Error:        herr.Err.Error(),
		})
	}
	return resp
}

// handleStatus handles GET /api/status: catalog and session counts, plugins
// installed at runtime, stored preferences, and dedupe counters.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	prefs, err := g.store.ListPluginPreferences(r.Context())
	if err != nil {
		g.sendError(w, err)
		return
	}

	resp := StatusResponse{
		Plugins:     g.registry.Len(),
		Sessions:    len(g.sessions.List()),
		Installed:   g.installer.InstalledIDs(),
		Preferences: make([]PreferenceResponse, 0, len(prefs)),
	}
	if resp.Installed == nil {
		resp.Installed = []string{}
	}
	for _, p := range prefs {
		resp.Preferences = append(resp.Preferences, PreferenceResponse{
			PluginID:  p.PluginID,
			Enabled:   p.Enabled,
			UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
		})
	}
	stats := g.dedupe.Stats()
	resp.Dedupe = DedupeResponse{
		Size:       stats.Size,
		Duplicates: stats.Duplicates,
		Evicted:    stats.Evicted,
		Expired:    stats.Expired,
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleAckStream handles GET /api/sessions/{id}/acks, streaming each
// acknowledgement batch as a "tool_response" SSE event until the client
// disconnects or the session closes.
func (g *Gateway) handleAckStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := g.sessions.Subscribe(r.Context(), id)
	if err != nil {
		g.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"session_id": id})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				g.writeSSEEvent(w, "closed", map[string]string{"session_id": id})
				flusher.Flush()
				return
			}
			g.writeSSEEvent(w, "tool_response", ev)
			flusher.Flush()
		}
	}
}

// formatSSEEvent formats an SSE event as a string with the standard format:
// event: <eventType>\ndata: <data>\n\n
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	_, _ = io.WriteString(w, formatSSEEvent(event, string(dataJSON)))
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, plugins.ErrValidation), errors.Is(err, plugins.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, plugins.ErrProtected):
		return http.StatusForbidden
	case errors.Is(err, plugins.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, plugins.ErrNoTemplate):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendError writes err with its mapped status. Internal errors are logged
// and reported without detail.
func (g *Gateway) sendError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, status, "internal server error")
		return
	}
	g.sendJSONError(w, status, err.Error())
}
