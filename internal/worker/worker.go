package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/internal/whiteboards"
	"github.com/peerlearn/collab/pkg/queue"
)

const dequeueWait = 5 * time.Second

// WhiteboardReader reads the final whiteboard of a session.
type WhiteboardReader interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error)
}

// Archiver stores a whiteboard snapshot and returns where it went.
type Archiver interface {
	ArchiveWhiteboard(ctx context.Context, sessionID string, version int64, canvas []byte) (string, error)
}

// Jobs is the queue the archiver consumes.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// WhiteboardArchiver copies a session's final whiteboard to the archive when the session ends.
type WhiteboardArchiver struct {
	boards  WhiteboardReader
	archive Archiver
	jobs    Jobs
	backoff time.Duration
	logger  *zap.Logger
}

// NewWhiteboardArchiver creates an archive job processor.
func NewWhiteboardArchiver(boards WhiteboardReader, archive Archiver, jobs Jobs, logger *zap.Logger) *WhiteboardArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhiteboardArchiver{boards: boards, archive: archive, jobs: jobs, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one archive job. Sessions that never had a whiteboard, or only an untouched one,
// have nothing to archive.
func (p *WhiteboardArchiver) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeWhiteboardArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.WhiteboardArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	w, err := p.boards.Get(ctx, payload.SessionID)
	if errors.Is(err, whiteboards.ErrNotFound) {
		p.logger.Info("no whiteboard to archive", zap.String("session_id", payload.SessionID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read whiteboard: %w", err)
	}
	if w.Version == 0 {
		p.logger.Info("whiteboard never edited, skipping archive", zap.String("session_id", payload.SessionID.String()))
		return nil
	}

	key, err := p.archive.ArchiveWhiteboard(ctx, payload.SessionID.String(), w.Version, w.CanvasState)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	p.logger.Info("whiteboard archived",
		zap.String("session_id", payload.SessionID.String()),
		zap.Int64("version", w.Version),
		zap.String("key", key),
	)
	return nil
}

// Run consumes jobs until ctx is done. Failed jobs are handed back to the queue for retry.
func (p *WhiteboardArchiver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("archive worker stopping")
			return
		}

		job, err := p.jobs.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *WhiteboardArchiver) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
