package history

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/internal/videosessions"
	"github.com/peerlearn/collab/pkg/database"
)

// Cursor is the ordering key of the last entry read: ended_at DESC, session_id DESC.
// Both parts are immutable once a session has ended, so reads after a cursor are stable.
type Cursor struct {
	EndedAt   time.Time
	SessionID uuid.UUID
}

// before reports whether e sorts strictly after the cursor.
func (c Cursor) before(e models.HistoryEntry) bool {
	if !e.EndedAt.Equal(c.EndedAt) {
		return e.EndedAt.Before(c.EndedAt)
	}
	// Byte order matches PostgreSQL's uuid ordering.
	return bytes.Compare(e.SessionID[:], c.SessionID[:]) < 0
}

func cursorOf(e models.HistoryEntry) Cursor {
	return Cursor{EndedAt: e.EndedAt, SessionID: e.SessionID}
}

// Source reads ended sessions for a participant. Implementations never return non-ended sessions.
type Source interface {
	// Ended returns up to limit entries in history order. With after nil the first offset entries
	// are skipped; otherwise entries strictly after the cursor are returned and offset is ignored.
	Ended(ctx context.Context, userID uuid.UUID, after *Cursor, offset, limit int) ([]models.HistoryEntry, error)
	Totals(ctx context.Context, userID uuid.UUID) (count int, durationSeconds int64, err error)
}

// Repository reads history from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ended(ctx context.Context, userID uuid.UUID, after *Cursor, offset, limit int) ([]models.HistoryEntry, error) {
	const base = `SELECT v.session_id, p.user_id, v.started_at, v.ended_at, v.duration_seconds, COALESCE(v.end_reason, '')
		FROM video_sessions v
		JOIN learning_session_participants p ON p.session_id = v.session_id
		WHERE p.user_id = $1 AND v.state = 'ended'`
	const order = ` ORDER BY v.ended_at DESC, v.session_id DESC`

	var q string
	var args []interface{}
	if after != nil {
		q = base + ` AND (v.ended_at, v.session_id) < ($2, $3)` + order + ` LIMIT $4`
		args = []interface{}{userID, after.EndedAt, after.SessionID, limit}
	} else {
		q = base + order + ` LIMIT $2 OFFSET $3`
		args = []interface{}{userID, limit, offset}
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, database.StorageErr("list history", err)
	}
	defer rows.Close()
	var out []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var startedAt *time.Time
		if err := rows.Scan(&e.SessionID, &e.UserID, &startedAt, &e.EndedAt, &e.DurationSeconds, &e.EndReason); err != nil {
			return nil, database.StorageErr("scan history", err)
		}
		if startedAt != nil {
			e.StartedAt = *startedAt
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StorageErr("list history", err)
	}
	return out, nil
}

func (r *Repository) Totals(ctx context.Context, userID uuid.UUID) (int, int64, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(v.duration_seconds), 0)
		FROM video_sessions v
		JOIN learning_session_participants p ON p.session_id = v.session_id
		WHERE p.user_id = $1 AND v.state = 'ended'`
	var count int
	var total int64
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&count, &total); err != nil {
		return 0, 0, database.StorageErr("history totals", err)
	}
	return count, total, nil
}

// SessionReader reads video sessions by id.
type SessionReader interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*models.VideoSession, error)
}

// Roster lists the sessions a user takes part in.
type Roster interface {
	SessionsFor(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// MemorySource projects history from a session store and a roster without a database.
type MemorySource struct {
	sessions SessionReader
	roster   Roster
}

// NewMemorySource creates a MemorySource.
func NewMemorySource(sessions SessionReader, roster Roster) *MemorySource {
	return &MemorySource{sessions: sessions, roster: roster}
}

func (m *MemorySource) all(ctx context.Context, userID uuid.UUID) ([]models.HistoryEntry, error) {
	ids, err := m.roster.SessionsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]models.HistoryEntry, 0, len(ids))
	for _, id := range ids {
		s, err := m.sessions.Get(ctx, id)
		if errors.Is(err, videosessions.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if e, ok := entryFor(s, userID); ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return cursorOf(entries[i]).before(entries[j])
	})
	return entries, nil
}

func (m *MemorySource) Ended(ctx context.Context, userID uuid.UUID, after *Cursor, offset, limit int) ([]models.HistoryEntry, error) {
	entries, err := m.all(ctx, userID)
	if err != nil {
		return nil, err
	}
	start := 0
	if after != nil {
		for start < len(entries) && !after.before(entries[start]) {
			start++
		}
	} else {
		start = min(offset, len(entries))
	}
	end := min(start+limit, len(entries))
	return entries[start:end], nil
}

func (m *MemorySource) Totals(ctx context.Context, userID uuid.UUID) (int, int64, error) {
	entries, err := m.all(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.DurationSeconds
	}
	return len(entries), total, nil
}

func entryFor(s *models.VideoSession, userID uuid.UUID) (models.HistoryEntry, bool) {
	if !s.IsEnded() || s.EndedAt == nil {
		return models.HistoryEntry{}, false
	}
	e := models.HistoryEntry{
		SessionID: s.SessionID,
		UserID:    userID,
		EndedAt:   *s.EndedAt,
		EndReason: s.EndReason,
	}
	if s.StartedAt != nil {
		e.StartedAt = *s.StartedAt
	}
	if s.DurationSeconds != nil {
		e.DurationSeconds = *s.DurationSeconds
	}
	return e, true
}
