package whiteboards

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("whiteboard not found")
	ErrVersionConflict = errors.New("whiteboard version conflict")
	ErrVersionRequired = errors.New("whiteboard expected_version required")
	ErrInvalidCanvas   = errors.New("canvas_state must be a JSON object")
	ErrCanvasTooLarge  = errors.New("canvas_state too large")
)

// ConflictError reports a stale expected version together with the stored one,
// so the caller can re-read, merge and retry.
type ConflictError struct {
	Expected       int64
	CurrentVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("whiteboard version conflict: expected %d, current %d", e.Expected, e.CurrentVersion)
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// checkVersion passes when expected is nil (unconditional write) or matches current.
func checkVersion(current int64, expected *int64) error {
	if expected != nil && *expected != current {
		return &ConflictError{Expected: *expected, CurrentVersion: current}
	}
	return nil
}
