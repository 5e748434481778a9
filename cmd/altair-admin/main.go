// ABOUTME: Admin CLI for altair-gateway plugin management and session debugging
// ABOUTME: Talks to the gateway HTTP API with an optional operator JWT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/altair-gateway/internal/client"
)

const banner = `
        _ _        _                     _           _
   __ _| | |_ __ _(_)_ __       __ _  __| |_ __ ___ (_)_ __
  / _' | | __/ _' | | '__|____ / _' |/ _' | '_ ' _ \| | '_ \
 | (_| | | || (_| | | | |_____| (_| | (_| | | | | | | | | | |
  \__,_|_|\__\__,_|_|_|        \__,_|\__,_|_| |_| |_|_|_| |_|
`

// requestTimeout bounds every non-streaming command.
const requestTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(getEnv("ALTAIR_GATEWAY_URL", "http://localhost:8080"), getToken())

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(ctx, c)
	case "plugins":
		err = cmdPlugins(ctx, c, args)
	case "enable":
		err = cmdSetEnabled(ctx, c, args, true)
	case "disable":
		err = cmdSetEnabled(ctx, c, args, false)
	case "install":
		err = cmdInstall(ctx, c, args)
	case "uninstall":
		err = cmdUninstall(ctx, c, args)
	case "create":
		err = cmdCreate(ctx, c, args)
	case "installs":
		err = cmdInstalls(ctx, c, args)
	case "config":
		err = cmdModelConfig(ctx, c)
	case "guidance":
		err = cmdGuidance(ctx, c, args)
	case "session":
		err = cmdSession(ctx, c, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: altair-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                         Show gateway health and operator status")
	fmt.Println("  plugins                        List the plugin catalog")
	fmt.Println("  plugins show <id>              Show one plugin and its declaration")
	fmt.Println("  enable <id>                    Enable a plugin")
	fmt.Println("  disable <id>                   Disable a plugin")
	fmt.Println("  install <file|repo-url>        Install a plugin from a .zip/.js/.ts file or repository")
	fmt.Println("  uninstall <id>                 Remove an installed plugin")
	fmt.Println("  create --id ID [--name N]      Create a plugin from the default template")
	fmt.Println("  installs [--limit N]           Show recent install attempts")
	fmt.Println("  config                         Print the model setup payload")
	fmt.Println("  guidance [--html]              Print the system-instruction briefing")
	fmt.Println("  session open                   Open a session and print its id")
	fmt.Println("  session call <sid> <fn> [k=v]  Send a single tool call")
	fmt.Println("  session watch <sid>            Stream acknowledgements")
	fmt.Println("  session close <sid>            Close a session")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  ALTAIR_GATEWAY_URL       Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  ALTAIR_TOKEN             Operator JWT (default: ~/.config/altair/token)")
	fmt.Println()
}

func cmdStatus(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if err := c.Health(ctx); err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}
	green.Printf("  Gateway:  ")
	fmt.Println("healthy")

	ready, err := c.Ready(ctx)
	if err != nil {
		yellow.Printf("  Ready:    ")
		color.Red("%v\n", err)
		return nil
	}
	green.Printf("  Ready:    ")
	fmt.Println(strings.TrimSpace(ready))

	yellow.Printf("  Token:    ")
	if getToken() != "" {
		fmt.Println("configured")
	} else {
		fmt.Println("(none - operator commands need ALTAIR_TOKEN when auth is on)")
	}

	st, err := c.Status(ctx)
	if err != nil {
		yellow.Printf("  Status:   ")
		fmt.Printf("unavailable (%v)\n", err)
		return nil
	}
	printStatus(os.Stdout, st)
	return nil
}

// printStatus writes the operator section of the status report.
func printStatus(out io.Writer, st *client.Status) {
	installed := "(none)"
	if len(st.Installed) > 0 {
		installed = strings.Join(st.Installed, ", ")
	}
	fmt.Fprintf(out, "  Installed: %s\n", installed)
	fmt.Fprintf(out, "  Dedupe:    %d ids held, %d duplicates skipped\n", st.Dedupe.Size, st.Dedupe.Duplicates)
	if len(st.Preferences) == 0 {
		return
	}
	fmt.Fprintln(out, "  Preferences:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, p := range st.Preferences {
		state := "disabled"
		if p.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(w, "    %s\t%s\t%s\n", p.PluginID, state, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func cmdPlugins(ctx context.Context, c *client.Client, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if len(args) > 0 && args[0] != "list" {
		if args[0] != "show" || len(args) < 2 {
			return fmt.Errorf("usage: plugins [list | show <id>]")
		}
		info, err := c.GetPlugin(ctx, args[1])
		if err != nil {
			return fmt.Errorf("GetPlugin: %w", err)
		}
		cyan := color.New(color.FgCyan)
		fmt.Println()
		cyan.Printf("  %s\n", info.Name)
		cyan.Println("  " + strings.Repeat("-", len(info.Name)))
		fmt.Printf("  ID:          %s\n", info.ID)
		fmt.Printf("  Version:     %s\n", info.Version)
		fmt.Printf("  Author:      %s\n", info.Author)
		fmt.Printf("  Enabled:     %t\n", info.Enabled)
		fmt.Printf("  Built-in:    %t\n", info.BuiltIn)
		fmt.Printf("  Capability:  %s\n", info.Capability)
		fmt.Println()
		return printJSON(info.Declaration)
	}

	list, err := c.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("ListPlugins: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Plugins")
	cyan.Println("  -------")

	if len(list) == 0 {
		fmt.Println("  (no plugins)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tCAPABILITY\tVERSION\tSTATE\tSOURCE")
	fmt.Fprintln(w, "  --\t----\t----------\t-------\t-----\t------")
	for _, p := range list {
		state := "disabled"
		if p.Enabled {
			state = "enabled"
		}
		source := "installed"
		if p.BuiltIn {
			source = "built-in"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, truncate(p.Name, 24), p.Capability, p.Version, state, source)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdSetEnabled(ctx context.Context, c *client.Client, args []string, enabled bool) error {
	if len(args) < 1 {
		if enabled {
			return fmt.Errorf("usage: enable <plugin-id>")
		}
		return fmt.Errorf("usage: disable <plugin-id>")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	info, err := c.SetEnabled(ctx, args[0], enabled)
	if err != nil {
		return fmt.Errorf("SetEnabled: %w", err)
	}

	green := color.New(color.FgGreen)
	if info.Enabled {
		green.Printf("✓ Enabled %s (%s)\n", info.ID, info.Capability)
	} else {
		green.Printf("✓ Disabled %s (%s)\n", info.ID, info.Capability)
	}
	return nil
}

func cmdInstall(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: install <file.zip|file.js|file.ts | https://github.com/owner/repo>")
	}
	source := args[0]

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	yellow := color.New(color.FgYellow)
	yellow.Printf("  Installing %s...\n", source)

	installed, err := installSource(ctx, c, source)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Installed plugin: %s\n", installed.ID)
	fmt.Printf("  Name:        %s\n", installed.Name)
	fmt.Printf("  Capability:  %s\n", installed.Capability)
	fmt.Printf("  Author:      %s\n", installed.Author)
	return nil
}

func cmdUninstall(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: uninstall <plugin-id>")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := c.Uninstall(ctx, args[0]); err != nil {
		return fmt.Errorf("Uninstall: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Uninstalled plugin: %s\n", args[0])
	return nil
}

func cmdCreate(ctx context.Context, c *client.Client, args []string) error {
	req, err := parseCreateArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	info, err := c.CreatePlugin(ctx, req)
	if err != nil {
		return fmt.Errorf("CreatePlugin: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created plugin: %s\n", info.ID)
	fmt.Printf("  Name:        %s\n", info.Name)
	fmt.Printf("  Capability:  %s\n", info.Capability)
	return nil
}

func cmdInstalls(ctx context.Context, c *client.Client, args []string) error {
	limit := 20
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit", "-n":
			if i+1 < len(args) {
				n, err := parseIntArg(args[i+1])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid limit: %s", args[i+1])
				}
				limit = n
				i++
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	events, err := c.ListInstalls(ctx, limit)
	if err != nil {
		return fmt.Errorf("ListInstalls: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Install History")
	cyan.Println("  ---------------")

	if len(events) == 0 {
		fmt.Println("  (no installs)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  WHEN\tKIND\tSOURCE\tPLUGIN\tSTATE\tERROR")
	fmt.Fprintln(w, "  ----\t----\t------\t------\t-----\t-----")
	for _, ev := range events {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Local().Format("Jan 02 15:04"), ev.Kind, truncate(ev.Source, 40),
			ev.PluginID, ev.State, truncate(ev.Error, 40))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdModelConfig(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	cfg, err := c.ModelConfig(ctx)
	if err != nil {
		return fmt.Errorf("ModelConfig: %w", err)
	}
	return printJSON(cfg)
}

func cmdGuidance(ctx context.Context, c *client.Client, args []string) error {
	html := len(args) > 0 && args[0] == "--html"

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	text, err := c.Guidance(ctx, html)
	if err != nil {
		return fmt.Errorf("Guidance: %w", err)
	}
	fmt.Println(text)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseIntArg parses a decimal int
func parseIntArg(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns the JWT from ALTAIR_TOKEN or ~/.config/altair/token.
func getToken() string {
	if token := os.Getenv("ALTAIR_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "altair", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
