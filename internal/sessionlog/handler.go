package sessionlog

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/pkg/response"
)

const writeTimeout = 5 * time.Second

// Recorder writes presence changes from the websocket hub to a Store.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewRecorder creates a presence recorder.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, now: time.Now, logger: logger}
}

func (r *Recorder) Joined(sessionID, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.LogJoin(ctx, sessionID, userID, r.now().UTC()); err != nil {
		r.logger.Warn("log join", zap.String("session_id", sessionID.String()), zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (r *Recorder) Left(sessionID, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.LogLeave(ctx, sessionID, userID, r.now().UTC()); err != nil {
		r.logger.Warn("log leave", zap.String("session_id", sessionID.String()), zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Handler handles GET /sessions/:id/attendance.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a session log handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// GetAttendance lists connections to the session's live channel, newest first.
func (h *Handler) GetAttendance(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.store.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("list attendance", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, gin.H{"attendance": list})
}
