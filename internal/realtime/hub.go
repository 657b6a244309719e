package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// Publisher publishes session events to other instances.
type Publisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// Subscriber delivers events published for a session by any instance.
type Subscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// PresenceRecorder is told when a participant connects to or leaves a session channel.
type PresenceRecorder interface {
	Joined(sessionID, userID uuid.UUID)
	Left(sessionID, userID uuid.UUID)
}

// Hub tracks websocket clients per learning session and fans events out to them.
// With a Publisher configured, events go through Redis so every instance delivers them exactly once.
type Hub struct {
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	pending  map[uuid.UUID]bool // subscribe in flight
	mu       sync.RWMutex
	pub      Publisher
	sub      Subscriber
	presence PresenceRecorder
	logger   *zap.Logger
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		pending:  make(map[uuid.UUID]bool),
		pub:      pub,
		sub:      sub,
		logger:   logger,
	}
}

// SetPresenceRecorder sets where connects and disconnects are recorded.
func (h *Hub) SetPresenceRecorder(r PresenceRecorder) {
	h.presence = r
}

func (h *Hub) presenceChanged(c *Client, online bool) {
	h.BroadcastToSessionAndPublish(c.SessionID, EventPresence, map[string]interface{}{
		"user_id": c.UserID, "online": online,
	})
	if h.presence == nil {
		return
	}
	if online {
		h.presence.Joined(c.SessionID, c.UserID)
	} else {
		h.presence.Left(c.SessionID, c.UserID)
	}
}

// Register adds a client to its session room. The first client (or any client of a room whose
// earlier subscribe failed) subscribes the room to the session channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
	}
	h.sessions[c.SessionID][c.ID] = c
	subscribe := h.sub != nil && h.subs[c.SessionID] == nil && !h.pending[c.SessionID]
	if subscribe {
		h.pending[c.SessionID] = true
	}
	h.mu.Unlock()

	h.logger.Debug("client joined session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
	if subscribe {
		h.subscribe(c.SessionID)
	}
}

// subscribe runs without h.mu held since it waits on the broker.
func (h *Hub) subscribe(sessionID uuid.UUID) {
	cancel, err := h.sub.SubscribeSession(sessionID, func(event string, payload []byte) {
		h.BroadcastToSession(sessionID, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.pending, sessionID)
	keep := err == nil && h.sessions[sessionID] != nil && h.subs[sessionID] == nil
	if keep {
		h.subs[sessionID] = cancel
	}
	h.mu.Unlock()

	switch {
	case err != nil:
		h.logger.Warn("session subscribe failed, delivering locally", zap.String("session_id", sessionID.String()), zap.Error(err))
	case !keep:
		// The room emptied while subscribing.
		cancel()
	}
}

// Unregister removes a client and closes its send channel. The last client out cancels the subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	m, ok := h.sessions[c.SessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := m[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(m, c.ID)
	close(c.send)
	var cancel func()
	if len(m) == 0 {
		delete(h.sessions, c.SessionID)
		cancel = h.subs[c.SessionID]
		delete(h.subs, c.SessionID)
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.logger.Debug("client left session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// unsubscribedRoom reports whether this instance has clients for sessionID that the
// session channel does not reach.
func (h *Hub) unsubscribedRoom(sessionID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0 && h.subs[sessionID] == nil
}

// BroadcastToSession delivers an event to this instance's clients of a session.
// Slow clients with a full buffer miss the event.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// BroadcastToSessionAndPublish delivers an event to the session's clients on every instance.
func (h *Hub) BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	if h.pub == nil {
		h.BroadcastToSession(sessionID, event, payload)
		return
	}
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.pub.PublishSessionEvent(sessionID, event, data); err != nil {
		h.logger.Warn("publish session event failed, delivering locally",
			zap.String("session_id", sessionID.String()), zap.String("event", event), zap.Error(err))
		h.BroadcastToSession(sessionID, event, json.RawMessage(data))
		return
	}
	if h.unsubscribedRoom(sessionID) {
		h.BroadcastToSession(sessionID, event, json.RawMessage(data))
	}
}

// ClientCount returns the number of clients connected to this instance for a session.
func (h *Hub) ClientCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func encode(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
