// Package config handles configuration loading for altair-gateway.
//
// # Configuration File
//
// Default location (first match wins):
//
//  1. Path from the ALTAIR_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/altair/gateway.yaml
//  3. ~/.config/altair/gateway.yaml
//
// Files ending in .toml are parsed as TOML; anything else is YAML. Both
// formats use the same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${ALTAIR_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//
//	database:
//	  driver: "sqlite"          # sqlite (pure Go) or sqlite3 (cgo)
//	  path: "/var/lib/altair/gateway.db"
//
//	auth:
//	  jwt_secret: "${ALTAIR_JWT_SECRET}"   # empty disables operator auth
//
//	installer:
//	  archive_delay: "1s"
//	  repository_delay: "1.5s"
//	  repository_host: "github.com"      # empty allows any host
//
//	dispatch:
//	  dedupe_ttl: "5m"
//	  dedupe_size: 10000
//
//	model:
//	  name: "models/gemini-2.0-flash-exp"
//	  voice: "Aoede"
//	  google_search: true
//
//	tailscale:
//	  enabled: false
//	  hostname: "altair"
//	  auth_key: "${TS_AUTHKEY}"
//	  ephemeral: false
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Duration values use time.ParseDuration syntax. Fields left out keep the
// values from Default.
package config
