package videosessions

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/pkg/response"
)

// EndRequest is the optional body for POST /sessions/:id/video/end.
type EndRequest struct {
	Reason string `json:"reason"`
}

// Handler handles video session lifecycle endpoints.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a video session handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

// Start handles POST /sessions/:id/video/start.
func (h *Handler) Start(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.manager.Start(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.OK(c, s)
}

// Status handles GET /sessions/:id/video.
func (h *Handler) Status(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.manager.Status(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.OK(c, s)
}

// End handles POST /sessions/:id/video/end. The body is optional.
func (h *Handler) End(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req EndRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	s, err := h.manager.End(c.Request.Context(), sessionID, req.Reason)
	if err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.OK(c, s)
}

func (h *Handler) writeError(c *gin.Context, sessionID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "video session not found")
	case errors.Is(err, ErrAlreadyEnded):
		response.Conflict(c, "video session already ended")
	case errors.Is(err, ErrProvisioningFailed):
		response.ServiceUnavailable(c, "live media provisioning failed, retry")
	default:
		h.logger.Error("video session request failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "video session storage failure")
	}
}
