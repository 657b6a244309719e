package whiteboards

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/models"
)

// Events published to a session's channel.
const (
	EventWhiteboardUpdated = "whiteboard_updated"
	EventWhiteboardDeleted = "whiteboard_deleted"
)

// Policy holds the whiteboard write rules.
type Policy struct {
	// AllowUnversionedSave lets save and clear skip expected_version (last writer wins).
	AllowUnversionedSave bool
	// ClearCreates makes clear on a missing whiteboard create it instead of failing with ErrNotFound.
	ClearCreates   bool
	MaxCanvasBytes int
}

// DefaultPolicy matches the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{AllowUnversionedSave: true, MaxCanvasBytes: 2 << 20}
}

// Broadcaster fans out whiteboard events to the session's participants.
type Broadcaster interface {
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
}

// Service applies the whiteboard policy on top of a Store and publishes accepted writes.
type Service struct {
	store  Store
	policy Policy
	hub    Broadcaster
	logger *zap.Logger
}

// NewService creates a whiteboard service.
func NewService(store Store, policy Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, policy: policy, logger: logger}
}

// SetBroadcaster sets where whiteboard events are published.
func (s *Service) SetBroadcaster(hub Broadcaster) {
	s.hub = hub
}

// Get returns the stored whiteboard or ErrNotFound.
func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	return s.store.Get(ctx, sessionID)
}

// GetOrCreate returns the whiteboard, creating an empty one at version 0 on first access.
func (s *Service) GetOrCreate(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	return s.store.GetOrCreate(ctx, sessionID)
}

// Save replaces the canvas. With expected set, the write only succeeds if the stored version
// still matches; otherwise a *ConflictError reports the current version.
func (s *Service) Save(ctx context.Context, sessionID uuid.UUID, canvas json.RawMessage, expected *int64) (*models.Whiteboard, error) {
	if err := s.validate(canvas); err != nil {
		return nil, err
	}
	if expected == nil && !s.policy.AllowUnversionedSave {
		return nil, ErrVersionRequired
	}
	w, err := s.store.Save(ctx, sessionID, canvas, expected, true)
	if err != nil {
		s.logWriteError("save", sessionID, err)
		return nil, err
	}
	s.publishUpdate(w, false)
	return w, nil
}

// Clear resets the canvas to an empty object, bumping the version like any save.
func (s *Service) Clear(ctx context.Context, sessionID uuid.UUID, expected *int64) (*models.Whiteboard, error) {
	if expected == nil && !s.policy.AllowUnversionedSave {
		return nil, ErrVersionRequired
	}
	w, err := s.store.Save(ctx, sessionID, models.EmptyCanvas, expected, s.policy.ClearCreates)
	if err != nil {
		s.logWriteError("clear", sessionID, err)
		return nil, err
	}
	s.publishUpdate(w, true)
	return w, nil
}

// Delete removes the whiteboard. Deleting a missing whiteboard succeeds.
func (s *Service) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastToSessionAndPublish(sessionID, EventWhiteboardDeleted, map[string]interface{}{"session_id": sessionID})
	}
	return nil
}

func (s *Service) validate(canvas json.RawMessage) error {
	if s.policy.MaxCanvasBytes > 0 && len(canvas) > s.policy.MaxCanvasBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrCanvasTooLarge, len(canvas), s.policy.MaxCanvasBytes)
	}
	trimmed := bytes.TrimSpace(canvas)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidCanvas
	}
	return nil
}

func (s *Service) publishUpdate(w *models.Whiteboard, cleared bool) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToSessionAndPublish(w.SessionID, EventWhiteboardUpdated, map[string]interface{}{
		"session_id":       w.SessionID,
		"canvas_state":     w.CanvasState,
		"version":          w.Version,
		"last_modified_at": w.LastModifiedAt,
		"cleared":          cleared,
	})
}

func (s *Service) logWriteError(op string, sessionID uuid.UUID, err error) {
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
		s.logger.Debug("whiteboard write rejected", zap.String("op", op), zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	s.logger.Error("whiteboard write failed", zap.String("op", op), zap.String("session_id", sessionID.String()), zap.Error(err))
}
