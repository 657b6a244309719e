// Package sessionlog records when participants connect to and leave a session's live channel.
package sessionlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerlearn/collab/pkg/database"
)

// Attendance is one connection of a participant to a session.
type Attendance struct {
	UserID           uuid.UUID  `json:"user_id"`
	JoinedAt         time.Time  `json:"joined_at"`
	LeftAt           *time.Time `json:"left_at,omitempty"`
	ConnectedSeconds int64      `json:"connected_seconds"`
}

// Store persists attendance rows.
type Store interface {
	LogJoin(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error
	// LogLeave closes the participant's most recent open row.
	LogLeave(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Attendance, error)
}

// Repository handles session_attendance_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) LogJoin(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_attendance_logs (session_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		sessionID, userID, at)
	return database.StorageErr("log join", err)
}

func (r *Repository) LogLeave(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE session_attendance_logs l SET left_at = $3,
			connected_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($3 - l.joined_at))::BIGINT)
		 FROM (SELECT id FROM session_attendance_logs
		       WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL
		       ORDER BY joined_at DESC LIMIT 1) AS open
		 WHERE l.id = open.id`,
		sessionID, userID, at)
	return database.StorageErr("log leave", err)
}

func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Attendance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, joined_at, left_at, connected_seconds
		 FROM session_attendance_logs WHERE session_id = $1 ORDER BY joined_at DESC`,
		sessionID)
	if err != nil {
		return nil, database.StorageErr("list attendance", err)
	}
	defer rows.Close()
	list := []Attendance{}
	for rows.Next() {
		var a Attendance
		if err := rows.Scan(&a.UserID, &a.JoinedAt, &a.LeftAt, &a.ConnectedSeconds); err != nil {
			return nil, database.StorageErr("scan attendance", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StorageErr("list attendance", err)
	}
	return list, nil
}

// Memory keeps attendance in process.
type Memory struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]Attendance
}

// NewMemory creates an empty attendance log.
func NewMemory() *Memory {
	return &Memory{rows: make(map[uuid.UUID][]Attendance)}
}

func (m *Memory) LogJoin(_ context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sessionID] = append(m.rows[sessionID], Attendance{UserID: userID, JoinedAt: at})
	return nil
}

func (m *Memory) LogLeave(_ context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[sessionID]
	open := -1
	for i := range rows {
		if rows[i].UserID == userID && rows[i].LeftAt == nil && (open < 0 || rows[i].JoinedAt.After(rows[open].JoinedAt)) {
			open = i
		}
	}
	if open < 0 {
		return nil
	}
	left := at
	rows[open].LeftAt = &left
	rows[open].ConnectedSeconds = max(0, int64(at.Sub(rows[open].JoinedAt)/time.Second))
	return nil
}

func (m *Memory) ListBySession(_ context.Context, sessionID uuid.UUID) ([]Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]Attendance, len(m.rows[sessionID]))
	copy(list, m.rows[sessionID])
	sort.SliceStable(list, func(i, j int) bool { return list[i].JoinedAt.After(list[j].JoinedAt) })
	return list, nil
}
