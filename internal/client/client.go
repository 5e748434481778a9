// ABOUTME: HTTP client for the altair-gateway API
// ABOUTME: Wraps catalog, operator, and session routes and parses the SSE ack stream

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/altair-gateway/internal/plugins"
	"github.com/2389/altair-gateway/internal/session"
)

// SSE event names sent on the ack stream.
const (
	EventConnected    = "connected"
	EventToolResponse = "tool_response"
	EventClosed       = "closed"
)

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error (%d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// CreatePluginRequest is the body of POST /api/plugins.
type CreatePluginRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
}

// InstallEvent is one entry of the install audit trail.
type InstallEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind,omitempty"`
	Source    string    `json:"source"`
	PluginID  string    `json:"plugin_id,omitempty"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Preference is a stored plugin enabled flag.
type Preference struct {
	PluginID  string    `json:"plugin_id"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the operator view of gateway state.
type Status struct {
	Plugins     int          `json:"plugins"`
	Sessions    int          `json:"sessions"`
	Installed   []string     `json:"installed"`
	Preferences []Preference `json:"preferences"`
	Dedupe      struct {
		Size       int    `json:"size"`
		Duplicates uint64 `json:"duplicates"`
		Evicted    uint64 `json:"evicted"`
		Expired    uint64 `json:"expired"`
	} `json:"dedupe"`
}

// Session is an open live-model session.
type Session struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Config    *session.ModelConfig `json:"config"`
}

// Invocation is one handler run reported by a tool call.
type Invocation struct {
	PluginID     string `json:"plugin_id"`
	Capability   string `json:"capability"`
	InvocationID string `json:"invocation_id"`
	Output       string `json:"output,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ToolCallResult is the synchronous part of a tool call.
type ToolCallResult struct {
	Invocations []Invocation `json:"invocations"`
	Errors      []Invocation `json:"errors,omitempty"`
	Duplicates  []string     `json:"duplicates,omitempty"`
}

// AckBatch is one "tool_response" event from the ack stream.
type AckBatch struct {
	SessionID string                    `json:"session_id"`
	Acks      []plugins.Acknowledgement `json:"functionResponses"`
	SentAt    time.Time                 `json:"sent_at"`
}

// Client communicates with the altair-gateway HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a client. token may be empty when operator auth is disabled.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON response into out (which may be nil).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// handleErrorResponse extracts the error message from a non-2xx response.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// Health checks liveness.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Ready returns the readiness summary.
func (c *Client) Ready(ctx context.Context) (string, error) {
	return c.getText(ctx, "/health/ready")
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return string(body), nil
}

// ListPlugins returns the catalog in order.
func (c *Client) ListPlugins(ctx context.Context) ([]plugins.Info, error) {
	var resp struct {
		Plugins []plugins.Info `json:"plugins"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/plugins", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// GetPlugin returns one catalog entry.
func (c *Client) GetPlugin(ctx context.Context, id string) (*plugins.Info, error) {
	var info plugins.Info
	if err := c.doJSON(ctx, http.MethodGet, "/api/plugins/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetEnabled turns a plugin on or off.
func (c *Client) SetEnabled(ctx context.Context, id string, enabled bool) (*plugins.Info, error) {
	var info plugins.Info
	body := map[string]bool{"enabled": enabled}
	if err := c.doJSON(ctx, http.MethodPut, "/api/plugins/"+url.PathEscape(id)+"/enabled", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Uninstall removes a dynamically installed plugin.
func (c *Client) Uninstall(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/plugins/"+url.PathEscape(id), nil, nil)
}

// CreatePlugin registers a template-cloned plugin.
func (c *Client) CreatePlugin(ctx context.Context, in CreatePluginRequest) (*plugins.Info, error) {
	var info plugins.Info
	if err := c.doJSON(ctx, http.MethodPost, "/api/plugins", in, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// InstallURL installs a plugin from a repository URL.
func (c *Client) InstallURL(ctx context.Context, repoURL string) (*plugins.Info, error) {
	var info plugins.Info
	if err := c.doJSON(ctx, http.MethodPost, "/api/plugins/install", map[string]string{"url": repoURL}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// InstallArchive uploads an archive and installs it.
func (c *Client) InstallArchive(ctx context.Context, filename string, r io.Reader) (*plugins.Info, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finishing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/plugins/install", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var info plugins.Info
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListInstalls returns up to limit recent install attempts, newest first.
func (c *Client) ListInstalls(ctx context.Context, limit int) ([]InstallEvent, error) {
	path := "/api/installs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Installs []InstallEvent `json:"installs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Installs, nil
}

// Status returns installed plugins, stored preferences, and dedupe counters.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ModelConfig returns the model setup payload for the current plugin state.
func (c *Client) ModelConfig(ctx context.Context) (*session.ModelConfig, error) {
	var cfg session.ModelConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/model/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Guidance returns the system-instruction briefing, as HTML when html is set.
func (c *Client) Guidance(ctx context.Context, html bool) (string, error) {
	path := "/api/guidance"
	if html {
		path += "?format=html"
	}
	return c.getText(ctx, path)
}

// CreateSession opens a session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CloseSession ends a session.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// SendToolCall forwards a tool call to a session. Acknowledgements arrive on
// the ack stream.
func (c *Client) SendToolCall(ctx context.Context, sessionID string, call plugins.ToolCall) (*ToolCallResult, error) {
	var res ToolCallResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/toolcall", call, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AckHandler receives ack stream events. Either field may be nil.
type AckHandler struct {
	// OnConnected runs once the gateway has registered the subscription.
	OnConnected func()
	OnBatch     func(AckBatch)
}

// StreamAcks subscribes to a session's acknowledgement batches. It returns
// nil when the session closes, or the context error when ctx ends first.
func (c *Client) StreamAcks(ctx context.Context, sessionID string, h AckHandler) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/acks", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}
	return parseAckStream(ctx, resp.Body, h)
}

// parseAckStream reads SSE events until a "closed" event or EOF.
func parseAckStream(ctx context.Context, body io.Reader, h AckHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType != "" {
				data := strings.Join(dataLines, "\n")
				switch eventType {
				case EventConnected:
					if h.OnConnected != nil {
						h.OnConnected()
					}
				case EventClosed:
					return nil
				case EventToolResponse:
					var batch AckBatch
					if err := json.Unmarshal([]byte(data), &batch); err != nil {
						return fmt.Errorf("decoding ack batch: %w", err)
					}
					if h.OnBatch != nil {
						h.OnBatch(batch)
					}
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("reading SSE stream: %w", err)
	}
	return ctx.Err()
}
