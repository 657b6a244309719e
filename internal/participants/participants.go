// Package participants answers who takes part in a learning session. The roster is owned by the
// booking domain; this package only reads it.
package participants

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerlearn/collab/config"
	"github.com/peerlearn/collab/pkg/database"
)

// Directory looks up learning session participants.
type Directory interface {
	IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}

// Writer adds participants to a roster.
type Writer interface {
	Add(ctx context.Context, sessionID, userID uuid.UUID, role string) error
}

// Seed upserts entries into w. It stops at the first failure.
func Seed(ctx context.Context, w Writer, entries []config.RosterEntry) error {
	for _, e := range entries {
		if err := w.Add(ctx, e.SessionID, e.UserID, e.Role); err != nil {
			return err
		}
	}
	return nil
}

// Repository reads learning_session_participants in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IsParticipant reports whether userID is booked on sessionID.
func (r *Repository) IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM learning_session_participants WHERE session_id = $1 AND user_id = $2)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, sessionID, userID).Scan(&ok); err != nil {
		return false, database.StorageErr("check participant", err)
	}
	return ok, nil
}

// Add upserts a participant from SESSION_ROSTER_SEED. The booking domain owns real writes.
func (r *Repository) Add(ctx context.Context, sessionID, userID uuid.UUID, role string) error {
	const q = `INSERT INTO learning_session_participants (session_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	if _, err := r.pool.Exec(ctx, q, sessionID, userID, role); err != nil {
		return database.StorageErr("insert participant", err)
	}
	return nil
}

// Memory is an in-process roster.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]string
}

// NewMemory creates an empty roster.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[uuid.UUID]map[uuid.UUID]string)}
}

func (m *Memory) Add(_ context.Context, sessionID, userID uuid.UUID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sessionID] == nil {
		m.sessions[sessionID] = make(map[uuid.UUID]string)
	}
	m.sessions[sessionID][userID] = role
	return nil
}

func (m *Memory) IsParticipant(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID][userID]
	return ok, nil
}

// SessionsFor returns the sessions userID takes part in, in no particular order.
func (m *Memory) SessionsFor(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []uuid.UUID
	for sessionID, users := range m.sessions {
		if _, ok := users[userID]; ok {
			out = append(out, sessionID)
		}
	}
	return out, nil
}
