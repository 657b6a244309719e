package videosessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peerlearn/collab/internal/models"
)

// MutateFunc receives the committed record for a key (nil when none exists) and returns the
// record to persist. Returning nil leaves storage untouched and yields the current record.
// Returning an error aborts the update; nothing is written.
type MutateFunc func(current *models.VideoSession) (*models.VideoSession, error)

// Store persists one VideoSession per learning session. CreateOrUpdate is atomic per key:
// concurrent callers for the same session are serialized and never lose updates.
type Store interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*models.VideoSession, error)
	CreateOrUpdate(ctx context.Context, sessionID uuid.UUID, fn MutateFunc) (*models.VideoSession, error)
	// ListActiveStartedBefore returns ids of active sessions started before cutoff, oldest first.
	ListActiveStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}
