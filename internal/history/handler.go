package history

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/middleware"
	"github.com/peerlearn/collab/pkg/response"
)

// Page is the body of GET /me/history.
type Page struct {
	Entries interface{} `json:"entries"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

// Handler handles the caller's history and stats endpoints.
type Handler struct {
	agg    *Aggregator
	logger *zap.Logger
}

// NewHandler creates a history handler.
func NewHandler(agg *Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{agg: agg, logger: logger}
}

// List handles GET /me/history?limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	limit, err1 := queryInt(c, "limit", DefaultLimit)
	offset, err2 := queryInt(c, "offset", 0)
	if err := errors.Join(err1, err2); err != nil || limit < 0 || offset < 0 {
		response.BadRequest(c, "limit and offset must be non-negative integers")
		return
	}
	entries, err := Collect(h.agg.ListHistory(c.Request.Context(), userID, limit, offset))
	if err != nil {
		response.Internal(c, "history unavailable")
		return
	}
	response.OK(c, Page{Entries: entries, Limit: clampLimit(limit), Offset: offset})
}

// Stats handles GET /me/stats.
func (h *Handler) Stats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	stats, err := h.agg.Stats(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "stats unavailable")
		return
	}
	response.OK(c, stats)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
