package whiteboards

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/peerlearn/collab/internal/models"
)

// Store persists one whiteboard per learning session with an optimistic version counter.
// Save is linearizable per session: two saves against the same expected version never both succeed.
type Store interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error)
	GetOrCreate(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error)
	// Save replaces the canvas and increments the version by one. A nil expected skips the version
	// check. When create is false a missing whiteboard fails with ErrNotFound; otherwise it is
	// treated as an empty whiteboard at version 0.
	Save(ctx context.Context, sessionID uuid.UUID, canvas json.RawMessage, expected *int64, create bool) (*models.Whiteboard, error)
	// Delete removes the whiteboard. Deleting a missing whiteboard is not an error.
	Delete(ctx context.Context, sessionID uuid.UUID) error
}
