package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/participants"
	"github.com/peerlearn/collab/pkg/response"
)

// UserID returns the authenticated user set by JWT.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// RequireParticipant allows the request only if the authenticated user is booked on the
// learning session named by the :id path parameter. Must run after JWT.
func RequireParticipant(dir participants.Directory, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		sessionID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid session id")
			c.Abort()
			return
		}
		allowed, err := dir.IsParticipant(c.Request.Context(), sessionID, userID)
		if err != nil {
			logger.Error("participant lookup failed", zap.String("session_id", sessionID.String()), zap.Error(err))
			response.Internal(c, "participant lookup failed")
			c.Abort()
			return
		}
		if !allowed {
			response.Forbidden(c, "not a participant of this session")
			c.Abort()
			return
		}
		c.Next()
	}
}
