// ABOUTME: Live model sessions: creation, tool-call routing, and teardown.
// ABOUTME: A session's context is the liveness token for its scheduled acknowledgements.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/altair-gateway/internal/plugins"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is one live connection between a client and the model.
type Session struct {
	ID        string
	CreatedAt time.Time
	Config    *ModelConfig

	ctx         context.Context
	cancel      context.CancelFunc
	broadcaster *AckBroadcaster
	logger      *slog.Logger
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Closed reports whether the session has ended.
func (s *Session) Closed() bool { return s.ctx.Err() != nil }

// DedupeScope keys redelivery detection to this session; invocation ids
// from different sessions never collide.
func (s *Session) DedupeScope() string { return s.ID }

// SendAcks publishes an acknowledgement batch to the session's subscribers.
func (s *Session) SendAcks(ctx context.Context, acks []plugins.Acknowledgement) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	n := s.broadcaster.Publish(&AckEvent{
		SessionID: s.ID,
		Acks:      acks,
		SentAt:    time.Now().UTC(),
	})
	s.logger.Debug("ack batch published", "acks", len(acks), "subscribers", n)
	return nil
}

// ManagerConfig contains configuration options for the Manager.
type ManagerConfig struct {
	Aggregator  *plugins.Aggregator
	Dispatcher  *plugins.Dispatcher
	Broadcaster *AckBroadcaster
	Settings    ModelSettings
	Logger      *slog.Logger
}

// Manager owns the set of live sessions.
type Manager struct {
	aggregator  *plugins.Aggregator
	dispatcher  *plugins.Dispatcher
	broadcaster *AckBroadcaster
	settings    ModelSettings
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager with the given configuration.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewAckBroadcaster(logger)
	}
	return &Manager{
		aggregator:  cfg.Aggregator,
		dispatcher:  cfg.Dispatcher,
		broadcaster: broadcaster,
		settings:    cfg.Settings,
		logger:      logger.With("component", "sessions"),
		sessions:    make(map[string]*Session),
	}
}

// ModelConfig builds the model config for the current plugin state.
func (m *Manager) ModelConfig(ctx context.Context) (*ModelConfig, error) {
	state, err := m.aggregator.States(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading plugin states: %w", err)
	}
	return BuildModelConfig(m.settings, m.aggregator, state), nil
}

// Create opens a session, snapshotting the model config at this moment.
// The session outlives the request that created it; it ends on Close or
// Shutdown.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	cfg, err := m.ModelConfig(ctx)
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := uuid.New().String()
	s := &Session{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Config:      cfg,
		ctx:         sessCtx,
		cancel:      cancel,
		broadcaster: m.broadcaster,
		logger:      m.logger.With("session_id", id),
	}

	m.mu.Lock()
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session opened",
		"session_id", id,
		"declarations", len(cfg.Declarations()),
		"total_sessions", total,
	)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Subscribe registers an ack subscriber for a live session. The existence
// check and the registration happen under the session lock, so a concurrent
// Close either rejects the subscription or closes its channel.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan *AckEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[id]; !ok {
		return nil, ErrSessionNotFound
	}
	events, _ := m.broadcaster.Subscribe(ctx, id)
	return events, nil
}

// HandleToolCall routes a tool call received on a session through the
// dispatcher. Acknowledgements are published to the session's subscribers
// after the fixed delay, unless the session closes first.
func (m *Manager) HandleToolCall(id string, call plugins.ToolCall) (*plugins.DispatchReport, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.dispatcher.OnToolCall(s.ctx, call, s), nil
}

// Close ends a session. Pending acknowledgements are dropped and ack
// subscribers are disconnected.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.cancel()
	m.broadcaster.CloseSession(id)

	m.logger.Info("session closed", "session_id", id, "age", time.Since(s.CreatedAt).Round(time.Millisecond))
	return nil
}

// List returns the ids of live sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	for _, id := range m.List() {
		_ = m.Close(id)
	}
	m.broadcaster.Close()
}
