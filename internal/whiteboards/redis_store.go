package whiteboards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/pkg/database"
)

const (
	fieldCanvas   = "canvas"
	fieldVersion  = "version"
	fieldModified = "modified"
)

// Script status codes returned in the first slot of saveScript's reply.
const (
	saveOK       = 1
	saveMissing  = -1
	saveConflict = -2
)

// saveScript checks and bumps the version in one step.
// ARGV: canvas, expected version ("" for unconditional), create ("1"/"0"), modified unix nanos, ttl ms.
// Reply: {status, version}; on conflict version is the stored one.
var saveScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur then
  if ARGV[3] ~= '1' then
    return {-1, 0}
  end
  cur = 0
else
  cur = tonumber(cur)
end
if ARGV[2] ~= '' and tonumber(ARGV[2]) ~= cur then
  return {-2, cur}
end
local nextv = cur + 1
redis.call('HSET', KEYS[1], 'canvas', ARGV[1], 'version', nextv, 'modified', ARGV[4])
if tonumber(ARGV[5]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return {1, nextv}
`)

// createScript writes an empty board at version 0 unless one exists, then returns the hash.
// ARGV: canvas, modified unix nanos, ttl ms.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'canvas', ARGV[1], 'version', 0, 'modified', ARGV[2])
  if tonumber(ARGV[3]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
  end
end
return redis.call('HGETALL', KEYS[1])
`)

// RedisStore keeps whiteboards in Redis hashes. Writes run as Lua scripts, so the version
// check and the bump are atomic and concurrent writers never see a transient failure.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed whiteboard store. ttl 0 keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func whiteboardKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:whiteboard", sessionID)
}

func decodeWhiteboard(sessionID uuid.UUID, fields map[string]string) (*models.Whiteboard, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	version, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode whiteboard version: %w", err)
	}
	modified, err := strconv.ParseInt(fields[fieldModified], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode whiteboard modified: %w", err)
	}
	return &models.Whiteboard{
		SessionID:      sessionID,
		CanvasState:    json.RawMessage(fields[fieldCanvas]),
		Version:        version,
		LastModifiedAt: time.Unix(0, modified).UTC(),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	fields, err := s.client.HGetAll(ctx, whiteboardKey(sessionID)).Result()
	if err != nil {
		return nil, database.StorageErr("hgetall whiteboard", err)
	}
	w, err := decodeWhiteboard(sessionID, fields)
	if err != nil {
		return nil, database.StorageErr("decode whiteboard", err)
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *RedisStore) GetOrCreate(ctx context.Context, sessionID uuid.UUID) (*models.Whiteboard, error) {
	now := time.Now().UTC()
	flat, err := createScript.Run(ctx, s.client, []string{whiteboardKey(sessionID)},
		string(models.EmptyCanvas), now.UnixNano(), s.ttl.Milliseconds()).StringSlice()
	if err != nil {
		return nil, database.StorageErr("create whiteboard", err)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	w, err := decodeWhiteboard(sessionID, fields)
	if err != nil {
		return nil, database.StorageErr("decode whiteboard", err)
	}
	if w == nil {
		return nil, database.StorageErr("create whiteboard", errors.New("empty hash after create"))
	}
	return w, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID uuid.UUID, canvas json.RawMessage, expected *int64, create bool) (*models.Whiteboard, error) {
	var expectedArg string
	if expected != nil {
		expectedArg = strconv.FormatInt(*expected, 10)
	}
	createArg := "0"
	if create {
		createArg = "1"
	}
	now := time.Now().UTC()
	reply, err := saveScript.Run(ctx, s.client, []string{whiteboardKey(sessionID)},
		string(canvas), expectedArg, createArg, now.UnixNano(), s.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, database.StorageErr("save whiteboard", err)
	}
	if len(reply) != 2 {
		return nil, database.StorageErr("save whiteboard", fmt.Errorf("unexpected script reply %v", reply))
	}
	switch status, version := reply[0], reply[1]; status {
	case saveOK:
		return &models.Whiteboard{
			SessionID:      sessionID,
			CanvasState:    append(json.RawMessage(nil), canvas...),
			Version:        version,
			LastModifiedAt: time.Unix(0, now.UnixNano()).UTC(),
		}, nil
	case saveMissing:
		return nil, ErrNotFound
	case saveConflict:
		return nil, checkVersion(version, expected)
	default:
		return nil, database.StorageErr("save whiteboard", fmt.Errorf("unknown script status %d", status))
	}
}

func (s *RedisStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.client.Del(ctx, whiteboardKey(sessionID)).Err(); err != nil {
		return database.StorageErr("del whiteboard", err)
	}
	return nil
}
