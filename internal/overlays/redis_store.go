package overlays

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultOverlayTTL = 24 * time.Hour

// RedisStore is a Redis-backed implementation of Store. Overlays are stored
// as JSON values; a per-stream list index preserves insertion order. Both the
// values and the index carry a TTL so overlays for dead streams age out.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for persisted overlays. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix. Default is "studio".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    defaultOverlayTTL,
		prefix: "studio",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, id string) (Overlay, bool, error) {
	data, err := s.client.Get(ctx, s.overlayKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Overlay{}, false, nil
		}
		return Overlay{}, false, fmt.Errorf("redis get: %w", err)
	}
	var o Overlay
	if err := json.Unmarshal(data, &o); err != nil {
		return Overlay{}, false, fmt.Errorf("unmarshal overlay %s: %w", id, err)
	}
	return o, true, nil
}

// Put implements Store.Put.
func (s *RedisStore) Put(ctx context.Context, o Overlay) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal overlay %s: %w", o.ID, err)
	}

	key := s.overlayKey(o.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, s.ttl)
	if exists == 0 {
		idx := s.streamKey(o.StreamID)
		pipe.RPush(ctx, idx, o.ID)
		if s.ttl > 0 {
			pipe.Expire(ctx, idx, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	o, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.overlayKey(id))
	pipe.LRem(ctx, s.streamKey(o.StreamID), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis delete: %w", err)
	}
	return true, nil
}

// ListByStream implements Store.ListByStream.
func (s *RedisStore) ListByStream(ctx context.Context, streamID string) ([]Overlay, error) {
	ids, err := s.client.LRange(ctx, s.streamKey(streamID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]Overlay, 0, len(ids))
	for _, id := range ids {
		o, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			// Expired values leave a stale index entry behind; skip them.
			out = append(out, o)
		}
	}
	return out, nil
}

// DeleteStream implements Store.DeleteStream.
func (s *RedisStore) DeleteStream(ctx context.Context, streamID string) error {
	idx := s.streamKey(streamID)
	ids, err := s.client.LRange(ctx, idx, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis lrange: %w", err)
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.overlayKey(id))
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete stream: %w", err)
	}
	return nil
}

func (s *RedisStore) overlayKey(id string) string {
	return s.prefix + ":overlay:" + id
}

func (s *RedisStore) streamKey(streamID string) string {
	return s.prefix + ":stream:" + streamID
}
