package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoSessionState is the lifecycle state of a video session.
type VideoSessionState string

const (
	VideoSessionNotStarted VideoSessionState = "not_started"
	VideoSessionActive     VideoSessionState = "active"
	VideoSessionEnded      VideoSessionState = "ended"
)

// Common end reasons. Callers may pass their own short text.
const (
	EndReasonCompleted = "completed"
	EndReasonLeft      = "left"
	EndReasonTimeout   = "timeout"
)

// VideoSession is the live-media session attached one-to-one to a learning session.
// JoinCredential and JoinURL are set only while Active; EndedAt and DurationSeconds only once Ended.
type VideoSession struct {
	SessionID       uuid.UUID         `json:"session_id"`
	State           VideoSessionState `json:"state"`
	JoinCredential  *string           `json:"join_credential,omitempty"`
	JoinURL         *string           `json:"join_url,omitempty"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
	EndReason       string            `json:"end_reason,omitempty"`
}

// IsActive reports whether participants can currently join.
func (s *VideoSession) IsActive() bool {
	return s != nil && s.State == VideoSessionActive
}

// IsEnded reports whether the session reached its terminal state.
func (s *VideoSession) IsEnded() bool {
	return s != nil && s.State == VideoSessionEnded
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (s *VideoSession) Clone() *VideoSession {
	if s == nil {
		return nil
	}
	out := *s
	out.JoinCredential = clonePtr(s.JoinCredential)
	out.JoinURL = clonePtr(s.JoinURL)
	out.StartedAt = clonePtr(s.StartedAt)
	out.EndedAt = clonePtr(s.EndedAt)
	out.DurationSeconds = clonePtr(s.DurationSeconds)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
