package whiteboards

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/pkg/response"
)

// SaveRequest is the body for PUT /sessions/:id/whiteboard.
type SaveRequest struct {
	CanvasState     json.RawMessage `json:"canvas_state" binding:"required"`
	ExpectedVersion *int64          `json:"expected_version"`
}

// ClearRequest is the optional body for POST /sessions/:id/whiteboard/clear.
type ClearRequest struct {
	ExpectedVersion *int64 `json:"expected_version"`
}

// Handler handles whiteboard endpoints.
type Handler struct {
	service  *Service
	maxBytes int64
	logger   *zap.Logger
}

// NewHandler creates a whiteboard handler. maxBodyBytes caps request bodies; 0 disables the cap.
func NewHandler(service *Service, maxBodyBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, maxBytes: maxBodyBytes, logger: logger}
}

// Get handles GET /sessions/:id/whiteboard.
func (h *Handler) Get(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	w, err := h.service.GetOrCreate(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.OK(c, w)
}

// Save handles PUT /sessions/:id/whiteboard.
func (h *Handler) Save(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	if h.maxBytes > 0 {
		// Room for the envelope around the canvas itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+4096)
	}
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(c, ErrCanvasTooLarge.Error())
			return
		}
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	w, err := h.service.Save(c.Request.Context(), sessionID, req.CanvasState, req.ExpectedVersion)
	if err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.OK(c, w)
}

// Clear handles POST /sessions/:id/whiteboard/clear. The body is optional.
func (h *Handler) Clear(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req ClearRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	w, err := h.service.Clear(c.Request.Context(), sessionID, req.ExpectedVersion)
	if err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.OK(c, w)
}

// Delete handles DELETE /sessions/:id/whiteboard.
func (h *Handler) Delete(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), sessionID); err != nil {
		h.writeError(c, sessionID, err)
		return
	}
	response.NoContent(c)
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, sessionID uuid.UUID, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		response.ConflictWithData(c, err.Error(), gin.H{"current_version": conflict.CurrentVersion})
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "whiteboard not found")
	case errors.Is(err, ErrVersionRequired):
		response.PreconditionRequired(c, err.Error())
	case errors.Is(err, ErrCanvasTooLarge):
		response.TooLarge(c, err.Error())
	case errors.Is(err, ErrInvalidCanvas):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("whiteboard request failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "whiteboard storage failure")
	}
}
