// ABOUTME: Entry point for altair-gateway, the plugin registry and tool-call dispatch server
// ABOUTME: Provides serve, init, token, health, and plugins commands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/altair-gateway/internal/client"
	"github.com/2389/altair-gateway/internal/config"
	"github.com/2389/altair-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _ _        _                          _
   __ _| | |_ __ _(_)_ __       __ _  __ _| |_ _____      ____ _ _   _
  / _' | | __/ _' | | '__|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (_| | | || (_| | | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \__,_|_|\__\__,_|_|_|        \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                               |___/                             |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "plugins":
		err = runPlugins(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: altair-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                       Start the gateway server")
	fmt.Println("  init [--path P] [--force]   Write a config file with a fresh JWT secret")
	fmt.Println("  token --sub NAME [--ttl D]  Mint an operator token and save it for altair-admin")
	fmt.Println("  health                      Check gateway health")
	fmt.Println("  plugins                     List registered plugins")
	fmt.Println("  version                     Print the version")
	fmt.Println()
	fmt.Printf("Config is read from $%s, then $XDG_CONFIG_HOME/altair/gateway.yaml.\n", config.EnvConfigPath)
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, true, nil
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, found, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if found {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Printf("Config:    ")
		yellow.Println("(defaults)")
	}
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	if cfg.Server.HTTPAddr != "" && !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Auth:      ")
	if cfg.Auth.JWTSecret != "" {
		fmt.Println("operator routes require a token")
	} else {
		yellow.Println("disabled (no jwt_secret)")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting altair-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"db", cfg.Database.Path,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// localClient builds an API client for the gateway described by the local config.
func localClient() (*client.Client, error) {
	cfg, _, err := loadConfig(config.DefaultPath())
	if err != nil {
		return nil, err
	}
	if cfg.Server.HTTPAddr == "" {
		return nil, fmt.Errorf("no http_addr configured")
	}
	return client.New("http://"+cfg.Server.HTTPAddr, readToken(config.DefaultPath())), nil
}

func runHealth(ctx context.Context) error {
	c, err := localClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	ready, err := c.Ready(ctx)
	if err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}

	fmt.Println("healthy:", ready)
	return nil
}

func runPlugins(ctx context.Context) error {
	c, err := localClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	list, err := c.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("listing plugins: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAPABILITY\tENABLED\tBUILT-IN")
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", p.ID, p.Capability, p.Enabled, p.BuiltIn)
	}
	return w.Flush()
}

// setupLogger builds the process logger from the logging section.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = newColorHandler(os.Stdout, level)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
