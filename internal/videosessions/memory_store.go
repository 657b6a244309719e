package videosessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peerlearn/collab/internal/models"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.VideoSession
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*models.VideoSession)}
}

// Get returns a copy of the session or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, sessionID uuid.UUID) (*models.VideoSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// CreateOrUpdate applies fn under the store lock.
func (m *MemoryStore) CreateOrUpdate(_ context.Context, sessionID uuid.UUID, fn MutateFunc) (*models.VideoSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.sessions[sessionID].Clone()
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	next = next.Clone()
	next.SessionID = sessionID
	m.sessions[sessionID] = next
	return next.Clone(), nil
}

// ListActiveStartedBefore scans all sessions.
func (m *MemoryStore) ListActiveStartedBefore(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	var stale []*models.VideoSession
	for _, s := range m.sessions {
		if s.IsActive() && s.StartedAt != nil && s.StartedAt.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].StartedAt.Before(*stale[j].StartedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]uuid.UUID, 0, len(stale))
	for _, s := range stale {
		ids = append(ids, s.SessionID)
	}
	return ids, nil
}
