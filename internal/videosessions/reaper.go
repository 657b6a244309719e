package videosessions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const reaperBatch = 100

// Reaper periodically ends active sessions that outlived maxAge.
type Reaper struct {
	manager  *Manager
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewReaper creates a reaper; call Start to run it.
func NewReaper(manager *Manager, maxAge, interval time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{manager: manager, maxAge: maxAge, interval: interval, logger: logger}
}

// Start begins the sweep loop. Call Stop to release resources.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.maxAge <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
	r.logger.Info("video session reaper started", zap.Duration("max_age", r.maxAge), zap.Duration("interval", r.interval))
}

// Stop stops the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	<-r.done
	r.logger.Info("video session reaper stopped")
}

// Sweep ends stale sessions once, in batches, until none remain or ctx is done.
func (r *Reaper) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := r.manager.EndStale(ctx, r.maxAge, reaperBatch)
		if err != nil {
			r.logger.Error("video session reaper sweep", zap.Error(err))
			break
		}
		total += n
		if n < reaperBatch {
			break
		}
	}
	if total > 0 {
		r.logger.Info("video session reaper ended sessions", zap.Int("count", total))
	}
	return total
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
