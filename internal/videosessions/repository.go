package videosessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/pkg/database"
)

const sessionColumns = `session_id, state, join_credential, join_url, started_at, ended_at, duration_seconds, COALESCE(end_reason, '')`

// errNoChange rolls back a placeholder row when the mutation declined to create a record.
var errNoChange = errors.New("no change")

// Repository handles video_sessions persistence in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a video sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.VideoSession, error) {
	var s models.VideoSession
	var state string
	if err := row.Scan(&s.SessionID, &state, &s.JoinCredential, &s.JoinURL, &s.StartedAt, &s.EndedAt, &s.DurationSeconds, &s.EndReason); err != nil {
		return nil, err
	}
	s.State = models.VideoSessionState(state)
	return &s, nil
}

// Get returns the committed session. Placeholder rows (not_started) are invisible.
func (r *Repository) Get(ctx context.Context, sessionID uuid.UUID) (*models.VideoSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM video_sessions WHERE session_id = $1 AND state <> 'not_started'`
	s, err := scanSession(r.pool.QueryRow(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, database.StorageErr("select video session", err)
	}
	return s, nil
}

// CreateOrUpdate locks the row for sessionID, inserting a not_started placeholder first so that
// concurrent creators block on the same key. The placeholder is rolled back unless fn persists a record.
func (r *Repository) CreateOrUpdate(ctx context.Context, sessionID uuid.UUID, fn MutateFunc) (*models.VideoSession, error) {
	var out *models.VideoSession
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const ensure = `INSERT INTO video_sessions (session_id, state) VALUES ($1, 'not_started') ON CONFLICT (session_id) DO NOTHING`
		if _, err := tx.Exec(ctx, ensure, sessionID); err != nil {
			return database.StorageErr("ensure video session row", err)
		}
		const lock = `SELECT ` + sessionColumns + ` FROM video_sessions WHERE session_id = $1 FOR UPDATE`
		row, err := scanSession(tx.QueryRow(ctx, lock, sessionID))
		if err != nil {
			return database.StorageErr("lock video session", err)
		}
		var current *models.VideoSession
		if row.State != models.VideoSessionNotStarted {
			current = row
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			if current == nil {
				return errNoChange
			}
			out = current
			return nil
		}

		const update = `UPDATE video_sessions SET state = $2, join_credential = $3, join_url = $4, started_at = $5,
			ended_at = $6, duration_seconds = $7, end_reason = NULLIF($8, ''), updated_at = NOW()
			WHERE session_id = $1
			RETURNING ` + sessionColumns
		out, err = scanSession(tx.QueryRow(ctx, update, sessionID, string(next.State), next.JoinCredential, next.JoinURL,
			next.StartedAt, next.EndedAt, next.DurationSeconds, next.EndReason))
		if err != nil {
			return database.StorageErr("update video session", err)
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveStartedBefore returns active sessions started before cutoff, oldest first.
func (r *Repository) ListActiveStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	const q = `SELECT session_id FROM video_sessions WHERE state = 'active' AND started_at < $1 ORDER BY started_at LIMIT $2`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, database.StorageErr("list stale video sessions", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, database.StorageErr("scan stale video session", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StorageErr("list stale video sessions", err)
	}
	return ids, nil
}
