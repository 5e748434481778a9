// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:9090"

database:
  driver: "sqlite3"
  path: "./test.db"

auth:
  jwt_secret: "s3cret"

installer:
  archive_delay: "250ms"
  repository_delay: "2s"
  repository_host: "git.example.com"

dispatch:
  dedupe_ttl: "1m"
  dedupe_size: 50

model:
  name: "models/custom"
  voice: "Puck"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, DriverCgo, cfg.Database.Driver)
	assert.Equal(t, "./test.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 250*time.Millisecond, cfg.Installer.ArchiveDelay)
	assert.Equal(t, 2*time.Second, cfg.Installer.RepositoryDelay)
	assert.Equal(t, "git.example.com", cfg.Installer.RepositoryHost)
	assert.Equal(t, time.Minute, cfg.Dispatch.DedupeTTL)
	assert.Equal(t, 50, cfg.Dispatch.DedupeSize)
	assert.Equal(t, "models/custom", cfg.Model.Name)
	assert.Equal(t, "Puck", cfg.Model.Voice)
	assert.True(t, cfg.Model.GoogleSearch, "unset fields keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:7070"

[database]
path = "altair-test.db"

[installer]
archive_delay = "10ms"
repository_host = ""

[model]
google_search = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Server.HTTPAddr)
	assert.Equal(t, DriverModernc, cfg.Database.Driver)
	assert.Equal(t, "altair-test.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Millisecond, cfg.Installer.ArchiveDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Installer.RepositoryDelay)
	assert.Empty(t, cfg.Installer.RepositoryHost)
	assert.False(t, cfg.Model.GoogleSearch)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("ALTAIR_TEST_SECRET", "from-env")
	t.Setenv("ALTAIR_TEST_DB", "/tmp/env.db")

	path := writeConfig(t, "gateway.yaml", `
auth:
  jwt_secret: "${ALTAIR_TEST_SECRET}"
database:
  path: "${ALTAIR_TEST_DB}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ALTAIR_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${ALTAIR_A}", "alpha"},
		{"x-${ALTAIR_A}-y", "x-alpha-y"},
		{"${ALTAIR_UNSET_FOR_TEST}", ""},
		{"$ALTAIR_A", "$ALTAIR_A"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvVars(tt.in))
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "bad yaml",
			file:    "gateway.yaml",
			content: "server: [unclosed",
			wantErr: "parsing config file",
		},
		{
			name:    "bad toml",
			file:    "gateway.toml",
			content: "[server\nhttp_addr = 1",
			wantErr: "parsing config file",
		},
		{
			name:    "bad duration",
			file:    "gateway.yaml",
			content: "installer:\n  archive_delay: \"soon\"\n",
			wantErr: "archive_delay",
		},
		{
			name:    "bad dedupe ttl",
			file:    "gateway.yaml",
			content: "dispatch:\n  dedupe_ttl: \"5 minutes\"\n",
			wantErr: "dedupe_ttl",
		},
		{
			name:    "unknown driver",
			file:    "gateway.yaml",
			content: "database:\n  driver: \"postgres\"\n",
			wantErr: "database.driver",
		},
		{
			name:    "empty db path",
			file:    "gateway.yaml",
			content: "database:\n  path: \"\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "negative delay",
			file:    "gateway.yaml",
			content: "installer:\n  repository_delay: \"-1s\"\n",
			wantErr: "must not be negative",
		},
		{
			name:    "tailscale without hostname",
			file:    "gateway.yaml",
			content: "tailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("http addr optional with tailscale", func(t *testing.T) {
		cfg := Default()
		cfg.Server.HTTPAddr = ""
		assert.Error(t, cfg.Validate())

		cfg.Tailscale.Enabled = true
		cfg.Tailscale.Hostname = "altair"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("log format", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Format = "xml"
		assert.ErrorContains(t, cfg.Validate(), "logging.format")
	})

	t.Run("dedupe size", func(t *testing.T) {
		cfg := Default()
		cfg.Dispatch.DedupeSize = -1
		assert.ErrorContains(t, cfg.Validate(), "dedupe_size")
	})
}

func TestDefaultPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/etc/altair/custom.toml")
		assert.Equal(t, "/etc/altair/custom.toml", DefaultPath())
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "altair", "gateway.yaml"), DefaultPath())
	})

	t.Run("home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", home)
		assert.Equal(t, filepath.Join(home, ".config", "altair", "gateway.yaml"), DefaultPath())
	})
}
