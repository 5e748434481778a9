// ABOUTME: init and token commands for first-time gateway setup
// ABOUTME: Writes a config with a random JWT secret and mints operator tokens for altair-admin

package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/altair-gateway/internal/auth"
	"github.com/2389/altair-gateway/internal/config"
)

// getDataPath returns the altair data directory.
// Priority: XDG_DATA_HOME/altair > ~/.local/share/altair
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "altair")
}

// tokenPath is where the operator token lives, next to the config file.
func tokenPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "token")
}

// readToken returns ALTAIR_TOKEN, or the saved token file, or "".
func readToken(configPath string) string {
	if token := os.Getenv("ALTAIR_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(tokenPath(configPath))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// encodeConfig renders cfg as TOML when path ends in .toml, YAML otherwise.
func encodeConfig(path string, cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# altair-gateway configuration\n")
	buf.WriteString("# Generated by altair-gateway init\n\n")

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding toml: %w", err)
		}
		return buf.Bytes(), nil
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// initConfig is the config written by init: defaults plus a fresh secret
// and a database under the data directory.
func initConfig(dataPath string) (*config.Config, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = secret
	cfg.Database.Path = filepath.Join(dataPath, "altair.db")
	cfg.Installer.ArchiveDelayRaw = cfg.Installer.ArchiveDelay.String()
	cfg.Installer.RepositoryDelayRaw = cfg.Installer.RepositoryDelay.String()
	cfg.Dispatch.DedupeTTLRaw = cfg.Dispatch.DedupeTTL.String()
	return cfg, nil
}

// runInit writes a new config file. Usage: init [--path P] [--force]
func runInit(args []string) error {
	configPath := config.DefaultPath()
	var force bool

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--force" || arg == "-f":
			force = true
		case arg == "--path" || arg == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--path requires a value")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--path="):
			configPath = strings.TrimPrefix(arg, "--path=")
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	dataPath := getDataPath()
	cfg, err := initConfig(dataPath)
	if err != nil {
		return err
	}
	data, err := encodeConfig(configPath, cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Println()
	yellow.Println("  Next:")
	fmt.Println("    altair-gateway token --sub admin   # mint an operator token")
	fmt.Println("    altair-gateway serve               # start the gateway")
	fmt.Println()
	return nil
}

// parseTokenArgs parses: --sub NAME [--ttl DURATION]
func parseTokenArgs(args []string) (string, time.Duration, error) {
	var sub string
	var ttl time.Duration

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var value string
		switch {
		case arg == "--sub" || arg == "-s" || arg == "--ttl" || arg == "-t":
			if i+1 >= len(args) {
				return "", 0, fmt.Errorf("%s requires a value", arg)
			}
			value = args[i+1]
			i++
		case strings.HasPrefix(arg, "--sub="), strings.HasPrefix(arg, "--ttl="):
			arg, value, _ = strings.Cut(arg, "=")
		default:
			return "", 0, fmt.Errorf("unexpected argument: %s", arg)
		}

		switch arg {
		case "--sub", "-s":
			sub = strings.TrimSpace(value)
		case "--ttl", "-t":
			d, err := time.ParseDuration(value)
			if err != nil {
				return "", 0, fmt.Errorf("invalid ttl: %w", err)
			}
			if d <= 0 {
				return "", 0, fmt.Errorf("ttl must be positive")
			}
			ttl = d
		}
	}

	if sub == "" {
		return "", 0, fmt.Errorf("--sub flag is required")
	}
	if ttl == 0 {
		ttl = auth.DefaultTokenTTL
	}
	return sub, ttl, nil
}

// runToken mints an operator token with the configured secret and saves it
// where altair-admin looks for it.
func runToken(args []string) error {
	sub, ttl, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", configPath)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(sub, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	path := tokenPath(configPath)
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Printf("  ✓ Saved token: %s\n", path)
	fmt.Println()
	cyan.Println("  Subject:  " + sub)
	cyan.Println("  Expires:  " + time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println("  Token (keep this secret!):")
	fmt.Println()
	fmt.Println("  " + token)
	fmt.Println()
	return nil
}
