package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmptyCanvas is the canvas state of a new or cleared whiteboard.
var EmptyCanvas = json.RawMessage(`{}`)

// Whiteboard is the shared canvas of a learning session. CanvasState is opaque to the server.
type Whiteboard struct {
	SessionID      uuid.UUID       `json:"session_id"`
	CanvasState    json.RawMessage `json:"canvas_state"`
	Version        int64           `json:"version"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
}

// Clone returns a deep copy of the whiteboard.
func (w *Whiteboard) Clone() *Whiteboard {
	if w == nil {
		return nil
	}
	out := *w
	out.CanvasState = append(json.RawMessage(nil), w.CanvasState...)
	return &out
}
