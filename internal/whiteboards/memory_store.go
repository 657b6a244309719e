package whiteboards

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peerlearn/collab/internal/models"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	boards map[uuid.UUID]*models.Whiteboard
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory whiteboard store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boards: make(map[uuid.UUID]*models.Whiteboard), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.boards[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (m *MemoryStore) GetOrCreate(_ context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.boards[sessionID]
	if !ok {
		w = m.blank(sessionID)
		m.boards[sessionID] = w
	}
	return w.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID uuid.UUID, canvas json.RawMessage, expected *int64, create bool) (*models.Whiteboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.boards[sessionID]
	if !ok {
		if !create {
			return nil, ErrNotFound
		}
		w = m.blank(sessionID)
	}
	if err := checkVersion(w.Version, expected); err != nil {
		return nil, err
	}
	next := &models.Whiteboard{
		SessionID:      sessionID,
		CanvasState:    append(json.RawMessage(nil), canvas...),
		Version:        w.Version + 1,
		LastModifiedAt: m.now().UTC(),
	}
	m.boards[sessionID] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boards, sessionID)
	return nil
}

func (m *MemoryStore) blank(sessionID uuid.UUID) *models.Whiteboard {
	return &models.Whiteboard{
		SessionID:      sessionID,
		CanvasState:    append(json.RawMessage(nil), models.EmptyCanvas...),
		LastModifiedAt: m.now().UTC(),
	}
}
