package whiteboards

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/pkg/database"
)

const whiteboardColumns = `session_id, canvas_state::text, version, last_modified_at`

// Repository handles whiteboards persistence in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a whiteboards repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanWhiteboard(row pgx.Row) (*models.Whiteboard, error) {
	var w models.Whiteboard
	var canvas string
	if err := row.Scan(&w.SessionID, &canvas, &w.Version, &w.LastModifiedAt); err != nil {
		return nil, err
	}
	w.CanvasState = json.RawMessage(canvas)
	return &w, nil
}

// Get returns the whiteboard for a session.
func (r *Repository) Get(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	const q = `SELECT ` + whiteboardColumns + ` FROM whiteboards WHERE session_id = $1`
	w, err := scanWhiteboard(r.pool.QueryRow(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, database.StorageErr("select whiteboard", err)
	}
	return w, nil
}

// GetOrCreate inserts an empty version-0 whiteboard if none exists, then returns it.
func (r *Repository) GetOrCreate(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	const ins = `INSERT INTO whiteboards (session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, ins, sessionID); err != nil {
		return nil, database.StorageErr("insert whiteboard", err)
	}
	return r.Get(ctx, sessionID)
}

// Save locks the row, checks the expected version and writes the new canvas.
// A placeholder row inserted for create is rolled back if the check fails.
func (r *Repository) Save(ctx context.Context, sessionID uuid.UUID, canvas json.RawMessage, expected *int64, create bool) (*models.Whiteboard, error) {
	var out *models.Whiteboard
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if create {
			const ins = `INSERT INTO whiteboards (session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING`
			if _, err := tx.Exec(ctx, ins, sessionID); err != nil {
				return database.StorageErr("insert whiteboard", err)
			}
		}
		var current int64
		err := tx.QueryRow(ctx, `SELECT version FROM whiteboards WHERE session_id = $1 FOR UPDATE`, sessionID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return database.StorageErr("lock whiteboard", err)
		}
		if err := checkVersion(current, expected); err != nil {
			return err
		}
		const upd = `UPDATE whiteboards SET canvas_state = $2::json, version = version + 1, last_modified_at = NOW()
			WHERE session_id = $1
			RETURNING ` + whiteboardColumns
		out, err = scanWhiteboard(tx.QueryRow(ctx, upd, sessionID, string(canvas)))
		if err != nil {
			return database.StorageErr("update whiteboard", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the whiteboard row if present.
func (r *Repository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM whiteboards WHERE session_id = $1`, sessionID); err != nil {
		return database.StorageErr("delete whiteboard", err)
	}
	return nil
}
