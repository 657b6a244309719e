package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/auth"
	"github.com/peerlearn/collab/internal/participants"
	"github.com/peerlearn/collab/pkg/response"
)

// Client-originated events relayed to the room without being stored.
const (
	EventCursor   = "cursor"
	EventStroke   = "stroke"
	EventPresence = "presence"
)

const maxMessageBytes = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // sockets authenticate with the token query parameter
	},
}

// WSMessage is the websocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// relayed wraps a client message with its sender.
type relayed struct {
	UserID uuid.UUID       `json:"user_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket connection to a session room.
type Client struct {
	ID        string
	SessionID uuid.UUID
	UserID    uuid.UUID
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// TokenValidator validates the token passed on the websocket URL.
type TokenValidator func(token string) (*auth.Claims, error)

// ServeWs handles GET /ws?session_id=&token=. Only participants of the session may connect.
func ServeWs(hub *Hub, validate TokenValidator, dir participants.Directory, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Query("session_id"))
		if err != nil {
			response.BadRequest(c, "valid session_id required")
			return
		}
		claims, err := validate(c.Query("token"))
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		ok, err := dir.IsParticipant(c.Request.Context(), sessionID, claims.UserID)
		if err != nil {
			logger.Error("participant lookup failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.Internal(c, "participant lookup failed")
			return
		}
		if !ok {
			response.Forbidden(c, "not a participant of this session")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			UserID:    claims.UserID,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, sendBuffer),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
		c.hub.presenceChanged(c, false)
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.hub.presenceChanged(c, true)

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Event {
		case EventCursor, EventStroke:
			c.hub.BroadcastToSessionAndPublish(c.SessionID, msg.Event, relayed{UserID: c.UserID, Data: msg.Data})
		default:
			// Server-owned events (whiteboard_updated, session_ended, ...) cannot be injected by clients.
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
