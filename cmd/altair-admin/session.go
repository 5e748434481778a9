// ABOUTME: Session, install, and create helpers for altair-admin
// ABOUTME: Builds tool calls from key=value args and prints streamed acknowledgements

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/altair-gateway/internal/client"
	"github.com/2389/altair-gateway/internal/plugins"
)

// isRepositoryURL reports whether source names a remote repository rather
// than a local archive.
func isRepositoryURL(source string) bool {
	return strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://")
}

func installSource(ctx context.Context, c *client.Client, source string) (*plugins.Info, error) {
	if isRepositoryURL(source) {
		info, err := c.InstallURL(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("InstallURL: %w", err)
		}
		return info, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := c.InstallArchive(ctx, filepath.Base(source), f)
	if err != nil {
		return nil, fmt.Errorf("InstallArchive: %w", err)
	}
	return info, nil
}

// parseCreateArgs parses: --id ID [--name N] [--description D] [--version V] [--author A]
func parseCreateArgs(args []string) (client.CreatePluginRequest, error) {
	var req client.CreatePluginRequest
	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			return req, fmt.Errorf("%s requires a value", args[i])
		}
		value := args[i+1]
		switch args[i] {
		case "--id":
			req.ID = value
		case "--name":
			req.Name = value
		case "--description":
			req.Description = value
		case "--version":
			req.Version = value
		case "--author":
			req.Author = value
		default:
			return req, fmt.Errorf("unknown flag: %s", args[i])
		}
		i++
	}
	if req.ID == "" {
		return req, fmt.Errorf("usage: create --id <id> [--name N] [--description D] [--version V] [--author A]")
	}
	return req, nil
}

// parseCallArgs turns key=value pairs into tool-call args. Values that parse
// as numbers or booleans keep that type.
func parseCallArgs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", pair)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			out[key] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}

// newCallID returns a fresh function-call id.
func newCallID() string {
	return "fc-" + uuid.New().String()[:8]
}

func cmdSession(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: session <open|call|watch|close>")
	}

	switch args[0] {
	case "open":
		return cmdSessionOpen(ctx, c)
	case "call":
		return cmdSessionCall(ctx, c, args[1:])
	case "watch":
		return cmdSessionWatch(ctx, c, args[1:])
	case "close":
		if len(args) < 2 {
			return fmt.Errorf("usage: session close <session-id>")
		}
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		if err := c.CloseSession(ctx, args[1]); err != nil {
			return fmt.Errorf("CloseSession: %w", err)
		}
		color.New(color.FgGreen).Printf("✓ Closed session: %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown session subcommand: %s", args[0])
	}
}

func cmdSessionOpen(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	s, err := c.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("CreateSession: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Opened session: %s\n", s.ID)
	if s.Config != nil {
		var names []string
		for _, tool := range s.Config.Tools {
			for _, decl := range tool.FunctionDeclarations {
				names = append(names, decl.Name)
			}
		}
		fmt.Printf("  Model:  %s\n", s.Config.Model)
		fmt.Printf("  Tools:  %s\n", strings.Join(names, ", "))
	}
	return nil
}

func cmdSessionCall(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: session call <session-id> <function> [key=value ...]")
	}
	sessionID, name := args[0], args[1]

	callArgs, err := parseCallArgs(args[2:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	call := plugins.ToolCall{FunctionCalls: []plugins.ToolCallEvent{
		{ID: newCallID(), Name: name, Args: callArgs},
	}}
	res, err := c.SendToolCall(ctx, sessionID, call)
	if err != nil {
		return fmt.Errorf("SendToolCall: %w", err)
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	if len(res.Duplicates) > 0 {
		gray.Printf("  duplicate, skipped: %s\n", strings.Join(res.Duplicates, ", "))
	}
	if len(res.Invocations) == 0 && len(res.Errors) == 0 && len(res.Duplicates) == 0 {
		color.Yellow("  no enabled plugin handles %s\n", name)
	}
	for _, inv := range res.Invocations {
		green.Printf("  ✓ %s → %s\n", inv.InvocationID, inv.PluginID)
		if inv.Output != "" {
			fmt.Printf("    %s\n", inv.Output)
		}
	}
	for _, inv := range res.Errors {
		color.Red("  ✗ %s → %s: %s\n", inv.InvocationID, inv.PluginID, inv.Error)
	}
	return nil
}

func cmdSessionWatch(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: session watch <session-id>")
	}
	sessionID := args[0]

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	err := c.StreamAcks(ctx, sessionID, client.AckHandler{
		OnConnected: func() {
			gray.Printf("  watching %s (ctrl-c to stop)\n", sessionID)
		},
		OnBatch: func(b client.AckBatch) {
			for _, ack := range b.Acks {
				cyan.Printf("  %s ", b.SentAt.Local().Format("15:04:05"))
				fmt.Printf("ack %s %v\n", ack.ID, ack.Response.Output)
			}
		},
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("StreamAcks: %w", err)
	}
	gray.Println("  session closed")
	return nil
}
