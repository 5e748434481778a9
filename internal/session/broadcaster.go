// ABOUTME: In-memory fan-out of acknowledgement batches to session subscribers
// ABOUTME: Each live session's ack stream can be watched by any number of clients

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/altair-gateway/internal/plugins"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// AckEvent is one acknowledgement batch sent back to the model.
type AckEvent struct {
	SessionID string                    `json:"session_id"`
	Acks      []plugins.Acknowledgement `json:"functionResponses"`
	SentAt    time.Time                 `json:"sent_at"`
}

// AckBroadcaster provides in-memory pub/sub for acknowledgement batches,
// keyed by session id.
type AckBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *AckEvent // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewAckBroadcaster creates a broadcaster. Pass nil logger for default.
func NewAckBroadcaster(logger *slog.Logger) *AckBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &AckBroadcaster{
		subscribers: make(map[string]map[string]chan *AckEvent),
		logger:      logger.With("component", "ack_broadcaster"),
	}
}

// Subscribe registers a subscriber for a session's acknowledgements. The
// subscription is removed when ctx is cancelled or the session is closed;
// either way the returned channel is closed.
func (b *AckBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan *AckEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *AckEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan *AckEvent)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish delivers event to every subscriber of its session.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *AckBroadcaster) Publish(event *AckEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
			delivered++
		default:
			b.logger.Debug("dropped ack batch for slow subscriber", "session_id", event.SessionID)
		}
	}
	return delivered
}

// Unsubscribe removes a subscription and closes its channel.
func (b *AckBroadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// CloseSession removes every subscriber of sessionID.
func (b *AckBroadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers[sessionID] {
		close(ch)
		delete(b.subscribers[sessionID], subID)
	}
	delete(b.subscribers, sessionID)
}

// SubscriberCount returns the number of subscribers watching sessionID.
func (b *AckBroadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *AckBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("broadcaster closed")
}
