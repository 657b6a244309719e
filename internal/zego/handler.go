package zego

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/config"
	"github.com/peerlearn/collab/internal/auth"
	"github.com/peerlearn/collab/internal/middleware"
	"github.com/peerlearn/collab/internal/videosessions"
	"github.com/peerlearn/collab/pkg/response"
)

// UserToken is the body of GET /sessions/:id/video/token.
type UserToken struct {
	Token  string `json:"token"`
	AppID  uint32 `json:"app_id"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// Handler issues per-participant ZEGO tokens for an active video session.
type Handler struct {
	manager *videosessions.Manager
	cfg     config.ZegoConfig
	logger  *zap.Logger
}

// NewHandler creates a ZEGO token handler.
func NewHandler(manager *videosessions.Manager, cfg config.ZegoConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, cfg: cfg, logger: logger}
}

// GetToken handles GET /sessions/:id/video/token. Tutors may publish; learners may too unless
// ?role=viewer is passed. Requires an active session.
func (h *Handler) GetToken(c *gin.Context) {
	if h.cfg.AppID == 0 || h.cfg.ServerSecret == "" {
		response.ServiceUnavailable(c, "ZEGOCLOUD not configured (ZEGO_APP_ID, ZEGO_SERVER_SECRET)")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}

	s, err := h.manager.Status(c.Request.Context(), sessionID)
	switch {
	case errors.Is(err, videosessions.ErrNotFound):
		response.NotFound(c, "video session not started")
		return
	case err != nil:
		h.logger.Error("zego token: session status", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "video session storage failure")
		return
	case !s.IsActive():
		response.Conflict(c, "video session is not active")
		return
	}

	role, _ := c.Get(middleware.ContextUserRole)
	canPublish := role == auth.RoleTutor || c.Query("role") != "viewer"
	room := RoomID(sessionID)
	token, err := GenerateRoomToken(h.cfg.AppID, h.cfg.ServerSecret, room, userID.String(), canPublish, h.cfg.TokenValidSec)
	if err != nil {
		h.logger.Error("zego token generation failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, UserToken{Token: token, AppID: h.cfg.AppID, RoomID: room, UserID: userID.String()})
}
