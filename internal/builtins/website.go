// ABOUTME: Open-website plugin asks the client to open a web page.
// ABOUTME: The gateway only validates and normalizes the URL; the UI opens it.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/2389/altair-gateway/internal/plugins"
)

// OpenWebsitePlugin creates the open-website plugin.
func OpenWebsitePlugin(logger *slog.Logger) *plugins.Plugin {
	h := &websiteHandler{logger: logger}
	return &plugins.Plugin{
		ID:          OpenWebsiteID,
		Name:        "Open Website Plugin",
		Description: "Open websites from the chat",
		Version:     "1.0.0",
		Author:      "Default",
		Declaration: plugins.Declaration{
			Name:        "open_website",
			Description: "Opens a website in a new tab.",
			Parameters: plugins.ObjectSchema(map[string]plugins.Property{
				"url": {
					Type:        plugins.TypeString,
					Description: "URL of the website to open.",
				},
			}, "url"),
		},
		Handler:      h,
		Presentation: "OpenWebsitePlugin",
	}
}

type websiteHandler struct {
	logger *slog.Logger
}

type websiteInput struct {
	URL string `json:"url"`
}

func (h *websiteHandler) Handle(_ context.Context, event plugins.ToolCallEvent) (string, error) {
	var in websiteInput
	if err := event.DecodeArgs(&in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	target, err := normalizeURL(in.URL)
	if err != nil {
		return "", err
	}

	h.logger.Info("website requested", "url", target)
	return result(map[string]string{"url": target, "status": "opened"})
}

// normalizeURL adds a missing https scheme and rejects anything that is not
// an http(s) URL with a host.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("invalid input: url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("invalid url: missing host")
	}
	return u.String(), nil
}
