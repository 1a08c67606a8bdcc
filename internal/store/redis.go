// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kwadwoansah/spar/internal/models"
)

// opTimeout bounds every Redis round trip so no room operation can hang on
// the network.
const opTimeout = 5 * time.Second

// saveScript performs the conditional write atomically: the document is only
// replaced when its stored version matches the writer's expectation, and the
// new snapshot is published to subscribers in the same step. Returns the new
// version, or 0 on conflict.
var saveScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v then v = '0' end
if v ~= ARGV[1] then
  return 0
end
local nv = tonumber(v) + 1
redis.call('HSET', KEYS[1], 'version', nv, 'data', ARGV[2])
redis.call('PUBLISH', KEYS[2], ARGV[2])
return nv
`)

// RedisStore is a RoomStore and ChatStore backed by Redis: the room document
// lives in a hash with an explicit version counter, change notification rides
// Redis pub/sub, and chat is a per-room list.
type RedisStore struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr string, db int, logger *logrus.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

func roomKey(roomID string) string     { return "spar:room:" + roomID }
func roomChannel(roomID string) string { return "spar:room:" + roomID + ":events" }
func chatKey(roomID string) string     { return "spar:room:" + roomID + ":chat" }

// Load implements RoomStore.
func (s *RedisStore) Load(ctx context.Context, roomID string) (models.RoomState, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vals, err := s.rdb.HMGet(ctx, roomKey(roomID), "version", "data").Result()
	if err != nil {
		return models.RoomState{}, 0, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if vals[0] == nil || vals[1] == nil {
		return models.RoomState{}, 0, ErrRoomNotFound
	}

	version, err := strconv.ParseInt(vals[0].(string), 10, 64)
	if err != nil {
		return models.RoomState{}, 0, fmt.Errorf("parse version for room %s: %w", roomID, err)
	}
	var state models.RoomState
	if err := json.Unmarshal([]byte(vals[1].(string)), &state); err != nil {
		return models.RoomState{}, 0, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return state, version, nil
}

// Save implements RoomStore via the conditional-write script.
func (s *RedisStore) Save(ctx context.Context, roomID string, state models.RoomState, expect int64) (int64, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encode room %s: %w", roomID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := saveScript.Run(ctx, s.rdb,
		[]string{roomKey(roomID), roomChannel(roomID)},
		strconv.FormatInt(expect, 10), string(data),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("save room %s: %w", roomID, err)
	}
	if res == 0 {
		return 0, ErrVersionConflict
	}
	return res, nil
}

// Delete implements RoomStore. An empty payload on the event channel tells
// subscribers the room is gone.
func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.rdb.Del(ctx, roomKey(roomID), chatKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	if err := s.rdb.Publish(ctx, roomChannel(roomID), "").Err(); err != nil {
		s.logger.WithError(err).Warnf("publish delete for room %s", roomID)
	}
	return nil
}

// Subscribe implements RoomStore. The current document is delivered first,
// then every published update; the channel closes when the room is deleted
// or the subscription cancelled.
func (s *RedisStore) Subscribe(ctx context.Context, roomID string) (<-chan models.RoomState, func(), error) {
	state, _, err := s.Load(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	sub := s.rdb.Subscribe(ctx, roomChannel(roomID))
	out := make(chan models.RoomState, 16)
	out <- state

	subCtx, cancelCtx := context.WithCancel(context.Background())
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				if msg.Payload == "" {
					// Room deleted.
					return
				}
				var next models.RoomState
				if err := json.Unmarshal([]byte(msg.Payload), &next); err != nil {
					s.logger.WithError(err).Warnf("bad room event payload for %s", roomID)
					continue
				}
				select {
				case out <- next:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	cancel := func() {
		cancelCtx()
		_ = sub.Close()
	}
	return out, cancel, nil
}

// Append implements ChatStore with an RPUSH onto the per-room list.
func (s *RedisStore) Append(ctx context.Context, roomID string, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.rdb.RPush(ctx, chatKey(roomID), data).Err(); err != nil {
		return fmt.Errorf("append chat for room %s: %w", roomID, err)
	}
	return nil
}

// History implements ChatStore, returning up to limit most recent messages.
func (s *RedisStore) History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.rdb.LRange(ctx, chatKey(roomID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat history for room %s: %w", roomID, err)
	}

	msgs := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			s.logger.WithError(err).Warnf("bad chat entry in room %s", roomID)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
