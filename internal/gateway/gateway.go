// ABOUTME: Gateway orchestrator that wires the plugin core to the HTTP API
// ABOUTME: Owns the store, registry, dispatcher, installer, sessions, and listener lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/altair-gateway/internal/auth"
	"github.com/2389/altair-gateway/internal/builtins"
	"github.com/2389/altair-gateway/internal/config"
	"github.com/2389/altair-gateway/internal/dedupe"
	"github.com/2389/altair-gateway/internal/plugins"
	"github.com/2389/altair-gateway/internal/session"
	"github.com/2389/altair-gateway/internal/store"
)

// Gateway orchestrates the altair-gateway server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *plugins.Registry
	aggregator  *plugins.Aggregator
	dispatcher  *plugins.Dispatcher
	installer   *plugins.Installer
	scheduler   *plugins.Scheduler
	sessions    *session.Manager
	dedupe      *dedupe.Cache
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// verifier is nil when auth.jwt_secret is empty
	verifier *auth.JWTVerifier
}

// initStore opens the SQLite store named by config. ALTAIR_DB_PATH overrides
// the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("ALTAIR_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	driver := cfg.Database.Driver
	if driver == "" {
		driver = store.DriverModernc
	}

	s, err := store.NewSQLiteStoreWithDriver(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// installerDelay maps an explicit "0s" in config to "no delay"; an unset
// value keeps the installer default.
func installerDelay(d time.Duration, raw string) time.Duration {
	if d == 0 && raw != "" {
		return -1
	}
	return d
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore creates a Gateway over an already opened store. The gateway
// takes ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := plugins.NewRegistry(logger)
	if err := builtins.Register(registry, builtins.Deps{
		Todos:  s,
		Timers: s,
		Logger: logger,
	}); err != nil {
		return nil, fmt.Errorf("registering built-in plugins: %w", err)
	}

	aggregator := plugins.NewAggregator(registry, s, logger)
	scheduler := plugins.NewScheduler(logger)
	dedupeCache := dedupe.New(cfg.Dispatch.DedupeTTL, cfg.Dispatch.DedupeSize)

	dispatcher := plugins.NewDispatcher(plugins.DispatcherConfig{
		Registry:  registry,
		States:    aggregator,
		Scheduler: scheduler,
		Dedupe:    dedupeCache,
		Logger:    logger,
	})

	installer := plugins.NewInstaller(plugins.InstallerConfig{
		Registry:        registry,
		Scheduler:       scheduler,
		Recorder:        s,
		ArchiveDelay:    installerDelay(cfg.Installer.ArchiveDelay, cfg.Installer.ArchiveDelayRaw),
		RepositoryDelay: installerDelay(cfg.Installer.RepositoryDelay, cfg.Installer.RepositoryDelayRaw),
		RepositoryHost:  cfg.Installer.RepositoryHost,
		Logger:          logger,
	})

	sessions := session.NewManager(session.ManagerConfig{
		Aggregator: aggregator,
		Dispatcher: dispatcher,
		Settings: session.ModelSettings{
			Model:        cfg.Model.Name,
			Voice:        cfg.Model.Voice,
			GoogleSearch: cfg.Model.GoogleSearch,
		},
		Logger: logger,
	})

	gw := &Gateway{
		config:     cfg,
		store:      s,
		registry:   registry,
		aggregator: aggregator,
		dispatcher: dispatcher,
		installer:  installer,
		scheduler:  scheduler,
		sessions:   sessions,
		dedupe:     dedupeCache,
		logger:     logger.With("component", "gateway"),
	}

	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		gw.logger.Warn("operator auth disabled - no jwt_secret configured")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway initialized",
		"plugins", registry.Len(),
		"auth", gw.verifier != nil,
		"repository_host", cfg.Installer.RepositoryHost,
	)
	return gw, nil
}

// operatorVerifier returns the verifier as an interface, nil when auth is
// disabled. Passing a typed nil pointer would make the middleware enforce auth.
func (g *Gateway) operatorVerifier() auth.TokenVerifier {
	if g.verifier == nil {
		return nil
	}
	return g.verifier
}

// Handler builds the HTTP routing table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	operator := auth.RequireOperator(g.operatorVerifier(), g.logger)
	op := func(h http.HandlerFunc) http.Handler { return operator(h) }

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	// Catalog and model-facing reads
	mux.HandleFunc("GET /api/plugins", g.handleListPlugins)
	mux.HandleFunc("GET /api/plugins/{id}", g.handleGetPlugin)
	mux.HandleFunc("GET /api/model/config", g.handleModelConfig)
	mux.HandleFunc("GET /api/guidance", g.handleGuidance)
	mux.HandleFunc("GET /api/todos", g.handleGetTodos)
	mux.HandleFunc("GET /api/timers", g.handleListTimers)

	// Sessions
	mux.HandleFunc("GET /api/sessions", g.handleListSessions)
	mux.HandleFunc("POST /api/sessions", g.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", g.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", g.handleCloseSession)
	mux.HandleFunc("POST /api/sessions/{id}/toolcall", g.handleToolCall)
	mux.HandleFunc("GET /api/sessions/{id}/acks", g.handleAckStream)

	// Operator actions
	mux.Handle("POST /api/plugins", op(g.handleCreatePlugin))
	mux.Handle("PUT /api/plugins/{id}/enabled", op(g.handleSetEnabled))
	mux.Handle("DELETE /api/plugins/{id}", op(g.handleUninstall))
	mux.Handle("POST /api/plugins/install", op(g.handleInstall))
	mux.Handle("GET /api/installs", op(g.handleListInstalls))
	mux.Handle("GET /api/status", op(g.handleStatus))

	return mux
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout,
// since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "altair-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener brings up a tsnet node and listens on it, through
// Funnel when configured.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	var ln net.Listener
	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		ln, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown ends every session, gracefully stops the HTTP server, waits for
// scheduled work, and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	// Closing sessions first drops pending acknowledgements and ends open
	// ack streams, which http.Server.Shutdown would otherwise wait on.
	g.sessions.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.scheduler.Wait()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())
	g.dedupe.Close()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when plugin preferences can be read.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.aggregator.States(r.Context()); err != nil {
		g.logger.Error("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("preference store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d plugins, %d sessions)", g.registry.Len(), len(g.sessions.List()))
}
