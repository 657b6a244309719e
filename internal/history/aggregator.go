// Package history projects ended video sessions into per-user history and usage statistics.
// It only reads; session state is owned by the videosessions package.
package history

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/collab/internal/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// fetchSize is how many rows one round trip to the source reads.
	fetchSize = 50
)

var ErrInvalidPage = errors.New("limit and offset must not be negative")

// Aggregator serves history lists and stats.
type Aggregator struct {
	source    Source
	fetchSize int
	logger    *zap.Logger
}

// NewAggregator creates a history aggregator over source.
func NewAggregator(source Source, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{source: source, fetchSize: fetchSize, logger: logger}
}

// ListHistory returns the user's ended sessions, newest first, skipping offset and yielding at most
// limit entries (0 means DefaultLimit, capped at MaxLimit). Nothing is read until the sequence is
// ranged over, and each range starts a fresh read. Rows are fetched in chunks keyed on the last
// entry seen, so sessions that end while the sequence is consumed never shift entries already read.
// A read error is yielded once and ends the sequence.
func (a *Aggregator) ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) iter.Seq2[models.HistoryEntry, error] {
	return func(yield func(models.HistoryEntry, error) bool) {
		if limit < 0 || offset < 0 {
			yield(models.HistoryEntry{}, ErrInvalidPage)
			return
		}
		limit = clampLimit(limit)

		var after *Cursor
		remaining := limit
		for remaining > 0 {
			n := min(remaining, a.fetchSize)
			chunk, err := a.source.Ended(ctx, userID, after, offset, n)
			if err != nil {
				a.logger.Error("list history", zap.String("user_id", userID.String()), zap.Error(err))
				yield(models.HistoryEntry{}, err)
				return
			}
			for _, e := range chunk {
				if !yield(e, nil) {
					return
				}
			}
			if len(chunk) < n {
				return
			}
			remaining -= len(chunk)
			last := cursorOf(chunk[len(chunk)-1])
			after = &last
		}
	}
}

// Collect drains a history sequence into a slice.
func Collect(seq iter.Seq2[models.HistoryEntry, error]) ([]models.HistoryEntry, error) {
	out := []models.HistoryEntry{}
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Stats totals the user's ended sessions. It is computed on every call.
func (a *Aggregator) Stats(ctx context.Context, userID uuid.UUID) (models.UsageStats, error) {
	count, total, err := a.source.Totals(ctx, userID)
	if err != nil {
		a.logger.Error("history stats", zap.String("user_id", userID.String()), zap.Error(err))
		return models.UsageStats{}, err
	}
	return models.UsageStats{UserID: userID, TotalSessions: count, TotalDurationSeconds: total}, nil
}

func clampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
