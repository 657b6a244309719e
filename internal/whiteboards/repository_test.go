package whiteboards

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerlearn/collab/pkg/database"
)

// openTestPool connects to TEST_DATABASE_URL and migrates it; the test is skipped when unset.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestRepository_Flow(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestPool(t))
	id := uuid.New()
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })

	if _, err := repo.Save(ctx, id, json.RawMessage(`{}`), nil, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("save without create: err = %v, want ErrNotFound", err)
	}
	w, err := repo.GetOrCreate(ctx, id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if w.Version != 0 || string(w.CanvasState) != "{}" {
		t.Fatalf("created = %+v", w)
	}
	saved, err := repo.Save(ctx, id, json.RawMessage(`{"strokes":[1]}`), version(0), true)
	if err != nil || saved.Version != 1 {
		t.Fatalf("Save = %+v, %v", saved, err)
	}
	_, err = repo.Save(ctx, id, json.RawMessage(`{"strokes":[2]}`), version(0), true)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.CurrentVersion != 1 {
		t.Fatalf("stale save: err = %v", err)
	}
	got, err := repo.Get(ctx, id)
	if err != nil || got.Version != 1 || string(got.CanvasState) != `{"strokes":[1]}` {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestRepository_StaleCreateLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestPool(t))
	id := uuid.New()

	if _, err := repo.Save(ctx, id, json.RawMessage(`{}`), version(3), true); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if _, err := repo.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after rolled back create: err = %v, want ErrNotFound", err)
	}
}

func TestRepository_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestPool(t))
	id := uuid.New()
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })
	if _, err := repo.GetOrCreate(ctx, id); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Save(ctx, id, json.RawMessage(`{"w":1}`), version(0), true)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrVersionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || conflicts.Load() != writers-1 {
		t.Fatalf("ok=%d conflicts=%d", ok.Load(), conflicts.Load())
	}

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Save(ctx, id, json.RawMessage(`{}`), nil, true); err != nil {
				t.Errorf("unversioned Save: %v", err)
			}
		}()
	}
	wg.Wait()
	w, err := repo.Get(ctx, id)
	if err != nil || w.Version != 1+writers {
		t.Errorf("Get = %+v, %v; want version %d", w, err, 1+writers)
	}
}
