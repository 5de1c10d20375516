// Package hub multiplexes the pipeline's event stream to WebSocket
// subscribers. Delivery to a client goes through a bounded queue: a slow
// consumer that overruns its cap is dropped, never the pipeline. Per-topic
// ordering follows production order; there is no ordering across topics.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleettrack/internal/domain"
	"fleettrack/internal/metrics"
)

// TokenValidator authenticates a connection token and returns the
// identity it was issued for, for audit.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// SnapshotSource feeds the periodic full-fleet batch. It is the same
// state registry that individual position updates are read from, so batch
// and per-tracker views never diverge.
type SnapshotSource interface {
	Snapshots() []domain.TrackerSnapshot
}

type Session struct {
	ID       string
	Identity string

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	topics map[string]bool
	closed bool
}

// Send exposes the outbound frame queue to the connection writer. The
// channel is never closed; Done signals teardown instead.
func (s *Session) Send() <-chan []byte { return s.send }

// Done is closed when the session is disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

type enqueueResult int

const (
	enqueueOK enqueueResult = iota
	enqueueFull
	enqueueClosed
)

// enqueue places a frame on the send queue without blocking. Holding
// s.mu ensures no frame is queued after Disconnect marks the session
// closed, so Publish can never race a teardown.
func (s *Session) enqueue(frame []byte) enqueueResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return enqueueClosed
	}
	select {
	case s.send <- frame:
		return enqueueOK
	default:
		return enqueueFull
	}
}

func (s *Session) hasTopic(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics[topic]
}

func (s *Session) hasAnyTrackerTopic() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.topics {
		if len(t) > 8 && t[:8] == "tracker:" {
			return true
		}
	}
	return false
}

type Hub struct {
	validator TokenValidator
	queueSize int
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[*Session]bool
}

func New(validator TokenValidator, queueSize int, log zerolog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		validator: validator,
		queueSize: queueSize,
		log:       log,
		sessions:  make(map[*Session]bool),
	}
}

// Connect authenticates the token and registers a session. Invalid or
// expired tokens fail with ErrUnauthorized before any state is allocated.
func (h *Hub) Connect(ctx context.Context, token string) (*Session, error) {
	identity, err := h.validator.Validate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	s := &Session{
		ID:       uuid.New().String(),
		Identity: identity,
		send:     make(chan []byte, h.queueSize),
		done:     make(chan struct{}),
		topics:   make(map[string]bool),
	}

	h.mu.Lock()
	h.sessions[s] = true
	h.mu.Unlock()

	h.log.Info().Str("session_id", s.ID).Str("identity", identity).Msg("client connected")
	return s, nil
}

// Subscribe adds a topic to the session. Subscribing twice is a no-op.
func (h *Hub) Subscribe(s *Session, topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: session closed", domain.ErrInvalidInput)
	}
	s.topics[topic] = true
	return nil
}

// Unsubscribe removes a topic; removing an absent topic is a no-op.
func (h *Hub) Unsubscribe(s *Session, topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// UnsubscribeAll clears every subscription but keeps the connection.
func (h *Hub) UnsubscribeAll(s *Session) {
	s.mu.Lock()
	s.topics = make(map[string]bool)
	s.mu.Unlock()
}

// Disconnect removes the session and its subscriptions. Other sessions
// and tracker state are unaffected. Safe to call more than once.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	registered := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.topics = make(map[string]bool)
	if !alreadyClosed {
		close(s.done)
	}
	s.mu.Unlock()

	if registered && !alreadyClosed {
		h.log.Info().Str("session_id", s.ID).Msg("client disconnected")
	}
}

// Publish delivers an event to every session subscribed to any of its
// topics, once per session. A session whose queue is full is dropped.
func (h *Hub) Publish(ev domain.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("event marshal failed")
		return
	}

	h.mu.RLock()
	var recipients []*Session
	for s := range h.sessions {
		for _, topic := range ev.Topics {
			if s.hasTopic(topic) {
				recipients = append(recipients, s)
				break
			}
		}
	}
	h.mu.RUnlock()

	h.deliver(recipients, frame)
}

// RunSnapshots periodically sends a full-fleet positions batch to
// connections holding no per-tracker subscription.
func (h *Hub) RunSnapshots(ctx context.Context, interval time.Duration, source SnapshotSource) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.broadcastSnapshot(source)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) broadcastSnapshot(source SnapshotSource) {
	h.mu.RLock()
	var recipients []*Session
	for s := range h.sessions {
		if !s.hasAnyTrackerTopic() {
			recipients = append(recipients, s)
		}
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	frame, err := json.Marshal(domain.Event{
		Type:    domain.EventPositionsBatch,
		Payload: source.Snapshots(),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("snapshot marshal failed")
		return
	}

	h.deliver(recipients, frame)
}

func (h *Hub) deliver(recipients []*Session, frame []byte) {
	var overflowed []*Session
	for _, s := range recipients {
		switch s.enqueue(frame) {
		case enqueueOK:
			metrics.HubEventsDelivered.Add(1)
		case enqueueFull:
			overflowed = append(overflowed, s)
		case enqueueClosed:
			// Session torn down after recipients were gathered.
		}
	}

	for _, s := range overflowed {
		metrics.HubClientsDropped.Add(1)
		h.log.Warn().Str("session_id", s.ID).Msg("slow consumer dropped")
		h.Disconnect(s)
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll disconnects every session, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.Disconnect(s)
	}
}
