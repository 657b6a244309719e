package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/internal/participants"
	"github.com/peerlearn/collab/internal/videosessions"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	sessions *videosessions.MemoryStore
	roster   *participants.Memory
	agg      *Aggregator
}

func newFixture() *fixture {
	f := &fixture{sessions: videosessions.NewMemoryStore(), roster: participants.NewMemory()}
	f.agg = NewAggregator(NewMemorySource(f.sessions, f.roster), nil)
	return f
}

// ended stores an ended session for user that finished at base+endedAfter.
func (f *fixture) ended(t *testing.T, user uuid.UUID, endedAfter time.Duration, duration int64) uuid.UUID {
	t.Helper()
	return f.endedWithID(t, uuid.New(), user, endedAfter, duration)
}

func (f *fixture) endedWithID(t *testing.T, id, user uuid.UUID, endedAfter time.Duration, duration int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	endedAt := base.Add(endedAfter)
	startedAt := endedAt.Add(-time.Duration(duration) * time.Second)
	_, err := f.sessions.CreateOrUpdate(ctx, id, func(*models.VideoSession) (*models.VideoSession, error) {
		return &models.VideoSession{
			SessionID:       id,
			State:           models.VideoSessionEnded,
			StartedAt:       &startedAt,
			EndedAt:         &endedAt,
			DurationSeconds: &duration,
			EndReason:       models.EndReasonCompleted,
		}, nil
	})
	if err != nil {
		t.Fatalf("store ended session: %v", err)
	}
	_ = f.roster.Add(ctx, id, user, "learner")
	return id
}

func (f *fixture) active(t *testing.T, user uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	cred, url := "c", "u"
	_, err := f.sessions.CreateOrUpdate(ctx, id, func(*models.VideoSession) (*models.VideoSession, error) {
		return &models.VideoSession{SessionID: id, State: models.VideoSessionActive, JoinCredential: &cred, JoinURL: &url, StartedAt: &base}, nil
	})
	if err != nil {
		t.Fatalf("store active session: %v", err)
	}
	_ = f.roster.Add(ctx, id, user, "learner")
	return id
}

func ids(entries []models.HistoryEntry) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.SessionID
	}
	return out
}

func equalIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListHistory_OnlyEndedNewestFirst(t *testing.T) {
	f := newFixture()
	user, other := uuid.New(), uuid.New()
	oldest := f.ended(t, user, 1*time.Hour, 600)
	newest := f.ended(t, user, 3*time.Hour, 1200)
	middle := f.ended(t, user, 2*time.Hour, 300)
	f.active(t, user)
	f.ended(t, other, 4*time.Hour, 60)

	entries, err := Collect(f.agg.ListHistory(context.Background(), user, 0, 0))
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if want := []uuid.UUID{newest, middle, oldest}; !equalIDs(ids(entries), want) {
		t.Fatalf("order = %v, want %v", ids(entries), want)
	}
	for _, e := range entries {
		if e.UserID != user {
			t.Errorf("entry user = %s", e.UserID)
		}
		if e.EndedAt.Sub(e.StartedAt) != time.Duration(e.DurationSeconds)*time.Second {
			t.Errorf("entry %s: duration %d does not match timestamps", e.SessionID, e.DurationSeconds)
		}
	}
}

func TestListHistory_TieBreakBySessionID(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000001")
	f.endedWithID(t, low, user, time.Hour, 10)
	f.endedWithID(t, high, user, time.Hour, 10)

	entries, _ := Collect(f.agg.ListHistory(context.Background(), user, 0, 0))
	if want := []uuid.UUID{high, low}; !equalIDs(ids(entries), want) {
		t.Errorf("order = %v, want %v", ids(entries), want)
	}
}

func TestListHistory_Pagination(t *testing.T) {
	f := newFixture()
	f.agg.fetchSize = 2
	user := uuid.New()
	var all []uuid.UUID
	for i := 10; i > 0; i-- {
		all = append(all, f.ended(t, user, time.Duration(i)*time.Minute, 60))
	}

	tests := []struct {
		name          string
		limit, offset int
		want          []uuid.UUID
	}{
		{name: "first page", limit: 3, offset: 0, want: all[:3]},
		{name: "second page", limit: 3, offset: 3, want: all[3:6]},
		{name: "tail", limit: 5, offset: 8, want: all[8:]},
		{name: "past end", limit: 5, offset: 20, want: nil},
		{name: "default limit", limit: 0, offset: 0, want: all},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := Collect(f.agg.ListHistory(context.Background(), user, tc.limit, tc.offset))
			if err != nil {
				t.Fatalf("ListHistory: %v", err)
			}
			if !equalIDs(ids(entries), tc.want) {
				t.Errorf("got %v, want %v", ids(entries), tc.want)
			}
		})
	}

	if _, err := Collect(f.agg.ListHistory(context.Background(), user, -1, 0)); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("negative limit err = %v", err)
	}
}

type countingSource struct {
	Source
	calls int
}

func (c *countingSource) Ended(ctx context.Context, userID uuid.UUID, after *Cursor, offset, limit int) ([]models.HistoryEntry, error) {
	c.calls++
	return c.Source.Ended(ctx, userID, after, offset, limit)
}

func TestListHistory_LazyAndRestartable(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	for i := 0; i < 5; i++ {
		f.ended(t, user, time.Duration(i)*time.Minute, 60)
	}
	src := &countingSource{Source: NewMemorySource(f.sessions, f.roster)}
	agg := NewAggregator(src, nil)
	agg.fetchSize = 2

	seq := agg.ListHistory(context.Background(), user, 5, 0)
	if src.calls != 0 {
		t.Fatalf("source read before ranging: %d calls", src.calls)
	}

	first, _ := Collect(seq)
	second, _ := Collect(seq)
	if len(first) != 5 || !equalIDs(ids(first), ids(second)) {
		t.Fatalf("restart mismatch: %v vs %v", ids(first), ids(second))
	}

	src.calls = 0
	for range seq {
		break
	}
	if src.calls != 1 {
		t.Errorf("early break read %d chunks, want 1", src.calls)
	}
}

func TestListHistory_StableUnderNewCompletions(t *testing.T) {
	f := newFixture()
	f.agg.fetchSize = 2
	user := uuid.New()
	for i := 6; i > 0; i-- {
		f.ended(t, user, time.Duration(i)*time.Minute, 60)
	}
	want, _ := Collect(f.agg.ListHistory(context.Background(), user, 6, 0))

	var got []models.HistoryEntry
	for e, err := range f.agg.ListHistory(context.Background(), user, 6, 0) {
		if err != nil {
			t.Fatalf("ListHistory: %v", err)
		}
		got = append(got, e)
		if len(got) == 1 {
			// A session ending now sorts ahead of everything already read.
			f.ended(t, user, time.Hour, 60)
		}
	}
	if !equalIDs(ids(got), ids(want)) {
		t.Errorf("entries shifted: got %v, want %v", ids(got), ids(want))
	}
}

type failingSource struct{}

func (failingSource) Ended(context.Context, uuid.UUID, *Cursor, int, int) ([]models.HistoryEntry, error) {
	return nil, errors.New("db down")
}

func (failingSource) Totals(context.Context, uuid.UUID) (int, int64, error) {
	return 0, 0, errors.New("db down")
}

func TestListHistory_ErrorEndsSequence(t *testing.T) {
	agg := NewAggregator(failingSource{}, nil)
	n := 0
	for _, err := range agg.ListHistory(context.Background(), uuid.New(), 10, 0) {
		n++
		if err == nil {
			t.Error("expected error")
		}
	}
	if n != 1 {
		t.Errorf("yielded %d times, want 1", n)
	}
	if _, err := agg.Stats(context.Background(), uuid.New()); err == nil {
		t.Error("Stats: expected error")
	}
}

func TestStats(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	f.ended(t, user, time.Hour, 600)
	f.ended(t, user, 2*time.Hour, 900)
	f.active(t, user)

	stats, err := f.agg.Stats(context.Background(), user)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.UserID != user || stats.TotalSessions != 2 || stats.TotalDurationSeconds != 1500 {
		t.Errorf("stats = %+v", stats)
	}

	f.ended(t, user, 3*time.Hour, 100)
	stats, _ = f.agg.Stats(context.Background(), user)
	if stats.TotalSessions != 3 || stats.TotalDurationSeconds != 1600 {
		t.Errorf("stats after new completion = %+v", stats)
	}

	empty, _ := f.agg.Stats(context.Background(), uuid.New())
	if empty.TotalSessions != 0 || empty.TotalDurationSeconds != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}
