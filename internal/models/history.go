package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is a read projection of an ended video session for one participant.
type HistoryEntry struct {
	SessionID       uuid.UUID `json:"session_id"`
	UserID          uuid.UUID `json:"user_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	EndReason       string    `json:"end_reason,omitempty"`
}

// UsageStats aggregates a user's ended sessions.
type UsageStats struct {
	UserID               uuid.UUID `json:"user_id"`
	TotalSessions        int       `json:"total_sessions"`
	TotalDurationSeconds int64     `json:"total_duration_seconds"`
}
