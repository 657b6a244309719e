package whiteboards

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 64})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore_Flow(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, 0)
	id := uuid.New()

	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
	}
	w, err := store.GetOrCreate(ctx, id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if w.Version != 0 || string(w.CanvasState) != "{}" {
		t.Fatalf("created = %+v", w)
	}

	saved, err := store.Save(ctx, id, json.RawMessage(`{"strokes":[1]}`), version(0), true)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("version = %d, want 1", saved.Version)
	}

	_, err = store.Save(ctx, id, json.RawMessage(`{"strokes":[2]}`), version(0), true)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.CurrentVersion != 1 {
		t.Fatalf("stale save: err = %v, want conflict at 1", err)
	}

	again, err := store.GetOrCreate(ctx, id)
	if err != nil {
		t.Fatalf("GetOrCreate existing: %v", err)
	}
	if again.Version != 1 || string(again.CanvasState) != `{"strokes":[1]}` {
		t.Errorf("stored = %+v, stale save must not change it", again)
	}
	if !again.LastModifiedAt.Equal(saved.LastModifiedAt) {
		t.Errorf("modified = %v, want %v", again.LastModifiedAt, saved.LastModifiedAt)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
}

func TestRedisStore_SaveWithoutCreate(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	_, err := store.Save(context.Background(), uuid.New(), json.RawMessage(`{}`), version(0), false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_SaveImplicitlyCreates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, 0)
	id := uuid.New()
	w, err := store.Save(ctx, id, json.RawMessage(`{"a":1}`), nil, true)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if w.Version != 1 {
		t.Errorf("version = %d, want 1", w.Version)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)
	id := uuid.New()
	if _, err := store.Save(ctx, id, json.RawMessage(`{}`), nil, true); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(whiteboardKey(id)); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestRedisStore_ConcurrentSavesSameVersion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, 0)
	id := uuid.New()
	if _, err := store.GetOrCreate(ctx, id); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Save(ctx, id, json.RawMessage(`{"w":1}`), version(0), true)
			var conflict *ConflictError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &conflict) && conflict.CurrentVersion == 1:
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || conflicts.Load() != writers-1 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and %d", ok.Load(), conflicts.Load(), writers-1)
	}
}

func TestRedisStore_ConcurrentUnversionedSaves(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, 0)
	id := uuid.New()

	const writers = 50
	var wg sync.WaitGroup
	var failed atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Save(ctx, id, json.RawMessage(`{}`), nil, true); err != nil {
				failed.Add(1)
				t.Errorf("Save: %v", err)
			}
		}()
	}
	wg.Wait()

	w, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if failed.Load() != 0 || w.Version != writers {
		t.Errorf("failed=%d version=%d, want 0 and %d", failed.Load(), w.Version, writers)
	}
}

func TestDecodeWhiteboard(t *testing.T) {
	id := uuid.New()
	modified := time.Date(2026, 3, 1, 10, 0, 0, 500, time.UTC)

	w, err := decodeWhiteboard(id, map[string]string{
		fieldCanvas:   `{"a":1}`,
		fieldVersion:  "7",
		fieldModified: "1772359200000000500",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.SessionID != id || w.Version != 7 || string(w.CanvasState) != `{"a":1}` {
		t.Errorf("decoded = %+v", w)
	}
	if !w.LastModifiedAt.Equal(modified) {
		t.Errorf("modified = %v, want %v", w.LastModifiedAt, modified)
	}
}

func TestDecodeWhiteboardMissing(t *testing.T) {
	w, err := decodeWhiteboard(uuid.New(), map[string]string{})
	if err != nil || w != nil {
		t.Errorf("decode empty hash = %v, %v; want nil, nil", w, err)
	}
}

func TestDecodeWhiteboardCorrupt(t *testing.T) {
	_, err := decodeWhiteboard(uuid.New(), map[string]string{fieldCanvas: `{}`, fieldVersion: "x", fieldModified: "0"})
	if err == nil {
		t.Fatal("expected error for corrupt version")
	}
}

func TestWhiteboardKey(t *testing.T) {
	id := uuid.New()
	key := whiteboardKey(id)
	if !strings.HasPrefix(key, "session:") || !strings.Contains(key, id.String()) {
		t.Errorf("key = %q", key)
	}
}
