package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/event-inbox/internal/metrics"
)

// EventSessionClosed is published when a session is unmounted or evicted.
const EventSessionClosed EventKind = "session_closed"

const eventBufferSize = 256

type sessionEvent struct {
	SessionID string
	Event     Event
}

// envelope is the websocket frame pushed to clients.
type envelope struct {
	SessionID string `json:"session_id"`
	Event
}

// Manager holds the mounted inbox sessions and fans their events out to
// websocket clients. Sessions live in an LRU; eviction closes them.
type Manager struct {
	backend Backend
	opts    Options
	log     zerolog.Logger

	sessions *lru.Cache // session id -> *Synchronizer

	mu   sync.RWMutex
	subs *Subscriptions

	RegisterChan   chan *Client
	UnregisterChan chan *Client
	eventChan      chan sessionEvent
}

func NewManager(backend Backend, opts Options, maxSessions int, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		backend:        backend,
		opts:           opts,
		log:            log.With().Str("component", "inbox-manager").Logger(),
		subs:           newSubscriptions(),
		RegisterChan:   make(chan *Client),
		UnregisterChan: make(chan *Client),
		eventChan:      make(chan sessionEvent, eventBufferSize),
	}
	cache, err := lru.NewWithEvict(maxSessions, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

// Mount creates an inbox session for s and performs the initial directory
// fetch. A deep-linked partner, if non-zero, is opened once the directory
// contains it. The session stays mounted when the initial fetch fails; the
// error is returned alongside the id.
func (m *Manager) Mount(ctx context.Context, s Session, deepLink int64) (string, error) {
	id := uuid.NewString()
	opts := m.opts
	opts.Notify = func(ev Event) { m.publish(id, ev) }

	syncer := NewSynchronizer(m.backend, s, opts, m.log.With().Str("session_id", id).Logger())
	m.sessions.Add(id, syncer)
	metrics.RecordSessionMounted()
	m.log.Info().Str("session_id", id).Str("role", string(s.Role)).Int64("user_id", s.UserID).Msg("inbox session mounted")

	if deepLink != 0 {
		if err := syncer.SetDeepLink(ctx, deepLink); err != nil {
			return id, err
		}
	}
	return id, syncer.RefreshDirectory(ctx)
}

// Get returns the session's synchronizer and marks it recently used.
func (m *Manager) Get(id string) (*Synchronizer, bool) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Synchronizer), true
}

// Unmount closes the session. It reports whether the session existed.
func (m *Manager) Unmount(id string) bool {
	return m.sessions.Remove(id)
}

// Shutdown closes every mounted session.
func (m *Manager) Shutdown() {
	m.sessions.Purge()
}

func (m *Manager) Len() int {
	return m.sessions.Len()
}

func (m *Manager) onEvict(key, value interface{}) {
	id, _ := key.(string)
	if syncer, ok := value.(*Synchronizer); ok {
		syncer.Close()
	}
	metrics.RecordSessionUnmounted()
	m.log.Info().Str("session_id", id).Msg("inbox session unmounted")
	m.publish(id, Event{Kind: EventSessionClosed})
}

// publish queues ev for the session's clients without blocking the caller.
func (m *Manager) publish(sessionID string, ev Event) {
	select {
	case m.eventChan <- sessionEvent{SessionID: sessionID, Event: ev}:
	default:
		m.log.Warn().Str("session_id", sessionID).Str("kind", string(ev.Kind)).Msg("event buffer full, dropping event")
	}
}

// Subscribers returns the number of websocket clients watching the session.
func (m *Manager) Subscribers(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subs.count(sessionID)
}

// Start runs the fan-out loop until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-m.RegisterChan:
			m.mu.Lock()
			m.subs.add(client)
			m.mu.Unlock()

		case client := <-m.UnregisterChan:
			m.mu.Lock()
			removed := m.subs.remove(client)
			m.mu.Unlock()
			if removed {
				close(client.Send)
			}

		case se := <-m.eventChan:
			data, err := json.Marshal(&envelope{SessionID: se.SessionID, Event: se.Event})
			if err != nil {
				m.log.Error().Err(err).Msg("encode event")
				continue
			}

			m.mu.Lock()
			var snapshot []*Client
			if se.Event.Kind == EventSessionClosed {
				snapshot = m.subs.drop(se.SessionID)
			} else {
				snapshot = m.subs.clients(se.SessionID)
			}
			m.mu.Unlock()

			for _, c := range snapshot {
				select {
				case c.Send <- data:
				default:
				}
				if se.Event.Kind == EventSessionClosed {
					close(c.Send)
				}
			}
		}
	}
}
