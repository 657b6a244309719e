package videosessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/models"
)

const maxEndReasonLen = 64

// Events published to a session's channel.
const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
)

// Credentials are issued by the live-media provider for one session.
type Credentials struct {
	JoinCredential string
	JoinURL        string
}

// Provisioner issues join credentials for a learning session.
type Provisioner interface {
	Provision(ctx context.Context, sessionID uuid.UUID) (Credentials, error)
}

// Broadcaster fans out lifecycle events to the session's participants.
type Broadcaster interface {
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
}

// EndedHook is called once per session, after it transitions to Ended.
type EndedHook func(ctx context.Context, s *models.VideoSession)

// Manager enforces the video session state machine:
// not_started -> active (Start), active -> ended (End). Ended is terminal.
type Manager struct {
	store            Store
	provisioner      Provisioner
	provisionTimeout time.Duration
	hub              Broadcaster
	onEnded          EndedHook
	now              func() time.Time
	logger           *zap.Logger
}

// NewManager creates a lifecycle manager. provisionTimeout bounds each provisioning call.
func NewManager(store Store, provisioner Provisioner, provisionTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:            store,
		provisioner:      provisioner,
		provisionTimeout: provisionTimeout,
		now:              time.Now,
		logger:           logger,
	}
}

// SetBroadcaster sets where session_started / session_ended events are published.
func (m *Manager) SetBroadcaster(hub Broadcaster) {
	m.hub = hub
}

// SetEndedHook sets the callback run after a session ends (e.g. archive the whiteboard).
func (m *Manager) SetEndedHook(fn EndedHook) {
	m.onEnded = fn
}

// Start activates the video session for sessionID. Starting an active session returns it unchanged;
// starting an ended session fails with ErrAlreadyEnded. Credentials are provisioned before the
// record is written, so a provisioning failure leaves nothing behind.
func (m *Manager) Start(ctx context.Context, sessionID uuid.UUID) (*models.VideoSession, error) {
	existing, err := m.store.Get(ctx, sessionID)
	switch {
	case err == nil:
		if existing.IsEnded() {
			return nil, ErrAlreadyEnded
		}
		if existing.IsActive() {
			return existing, nil
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	creds, err := m.provision(ctx, sessionID)
	if err != nil {
		m.logger.Warn("video session provisioning failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		return nil, err
	}

	var created bool
	s, err := m.store.CreateOrUpdate(ctx, sessionID, func(current *models.VideoSession) (*models.VideoSession, error) {
		created = false
		if current != nil {
			if current.IsEnded() {
				return nil, ErrAlreadyEnded
			}
			// Lost the race to another starter: keep the winner's credentials.
			return nil, nil
		}
		now := m.now().UTC()
		created = true
		return &models.VideoSession{
			SessionID:      sessionID,
			State:          models.VideoSessionActive,
			JoinCredential: &creds.JoinCredential,
			JoinURL:        &creds.JoinURL,
			StartedAt:      &now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		m.logger.Info("video session started", zap.String("session_id", sessionID.String()))
		m.broadcast(sessionID, EventSessionStarted, map[string]interface{}{"session_id": sessionID, "state": s.State, "started_at": s.StartedAt})
	}
	return s, nil
}

// Status returns the current video session or ErrNotFound if it was never started.
func (m *Manager) Status(ctx context.Context, sessionID uuid.UUID) (*models.VideoSession, error) {
	return m.store.Get(ctx, sessionID)
}

// End finalizes an active session. Ending an ended session returns the stored record unchanged.
func (m *Manager) End(ctx context.Context, sessionID uuid.UUID, reason string) (*models.VideoSession, error) {
	reason = normalizeReason(reason)
	var ended bool
	s, err := m.store.CreateOrUpdate(ctx, sessionID, func(current *models.VideoSession) (*models.VideoSession, error) {
		ended = false
		if current == nil {
			return nil, ErrNotFound
		}
		if current.IsEnded() {
			return nil, nil
		}
		now := m.now().UTC()
		startedAt := now
		if current.StartedAt != nil {
			startedAt = *current.StartedAt
		}
		if now.Before(startedAt) {
			now = startedAt
		}
		duration := int64(now.Sub(startedAt) / time.Second)

		next := current.Clone()
		next.State = models.VideoSessionEnded
		next.JoinCredential = nil
		next.JoinURL = nil
		next.StartedAt = &startedAt
		next.EndedAt = &now
		next.DurationSeconds = &duration
		next.EndReason = reason
		ended = true
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if ended {
		m.logger.Info("video session ended",
			zap.String("session_id", sessionID.String()),
			zap.Int64("duration_seconds", *s.DurationSeconds),
			zap.String("reason", s.EndReason),
		)
		m.broadcast(sessionID, EventSessionEnded, map[string]interface{}{
			"session_id":       sessionID,
			"state":            s.State,
			"ended_at":         s.EndedAt,
			"duration_seconds": s.DurationSeconds,
			"end_reason":       s.EndReason,
		})
		if m.onEnded != nil {
			m.onEnded(ctx, s.Clone())
		}
	}
	return s, nil
}

// EndStale ends active sessions started more than maxAge ago with reason "timeout".
// It returns how many sessions it ended.
func (m *Manager) EndStale(ctx context.Context, maxAge time.Duration, batch int) (int, error) {
	cutoff := m.now().Add(-maxAge)
	ids, err := m.store.ListActiveStartedBefore(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := m.End(ctx, id, models.EndReasonTimeout); err != nil {
			m.logger.Error("end stale video session", zap.String("session_id", id.String()), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func (m *Manager) provision(ctx context.Context, sessionID uuid.UUID) (Credentials, error) {
	if m.provisioner == nil {
		return Credentials{}, fmt.Errorf("%w: no provisioner configured", ErrProvisioningFailed)
	}
	pctx, cancel := context.WithTimeout(ctx, m.provisionTimeout)
	defer cancel()

	type result struct {
		creds Credentials
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		creds, err := m.provisioner.Provision(pctx, sessionID)
		ch <- result{creds: creds, err: err}
	}()

	select {
	case <-pctx.Done():
		return Credentials{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, pctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Credentials{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, r.err)
		}
		if r.creds.JoinCredential == "" || r.creds.JoinURL == "" {
			return Credentials{}, fmt.Errorf("%w: provider returned incomplete credentials", ErrProvisioningFailed)
		}
		return r.creds, nil
	}
}

func (m *Manager) broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	if m.hub != nil {
		m.hub.BroadcastToSessionAndPublish(sessionID, event, payload)
	}
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.EndReasonCompleted
	}
	if r := []rune(reason); len(r) > maxEndReasonLen {
		reason = string(r[:maxEndReasonLen])
	}
	return reason
}
