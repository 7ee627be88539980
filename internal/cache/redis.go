package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"conti/internal/core"
)

const redisKeyPrefix = "conti:result:"

// publishScript stores a result unless the key already holds a newer
// fingerprint. Fingerprints are zero-padded so string order is numeric order.
var publishScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'fp')
if current and current > ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'fp', ARGV[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisStore is a shared result tier for deployments running several
// instances. It follows the same fingerprint and TTL rules as ResultCache.
type RedisStore[T any] struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore[T any](client redis.UniversalClient, ttl time.Duration) *RedisStore[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore[T]{client: client, ttl: ttl}
}

// NewRedisStoreFromURL connects to a redis:// or rediss:// URL.
func NewRedisStoreFromURL[T any](ctx context.Context, url string, ttl time.Duration) (*RedisStore[T], error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore[T](client, ttl), nil
}

func encodeFingerprint(fp core.Fingerprint) string {
	if fp < 0 {
		fp = 0
	}
	return fmt.Sprintf("%019d", int64(fp))
}

// Load returns the shared value for key if it was computed from fp.
func (s *RedisStore[T]) Load(ctx context.Context, key string, fp core.Fingerprint) (T, bool, error) {
	var zero T
	vals, err := s.client.HMGet(ctx, redisKeyPrefix+key, "fp", "payload").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("load cached result: %w", err)
	}
	storedFP, ok1 := vals[0].(string)
	payload, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return zero, false, nil
	}
	n, err := strconv.ParseInt(storedFP, 10, 64)
	if err != nil || core.Fingerprint(n) != fp {
		return zero, false, nil
	}

	var v T
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return zero, false, fmt.Errorf("decode cached result: %w", err)
	}
	return v, true, nil
}

// Store publishes v as computed from fp. It returns false when a newer
// result is already shared.
func (s *RedisStore[T]) Store(ctx context.Context, key string, fp core.Fingerprint, v T) (bool, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	stored, err := publishScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		encodeFingerprint(fp), string(payload), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("publish cached result: %w", err)
	}
	return stored == 1, nil
}

// Invalidate removes the shared value for key.
func (s *RedisStore[T]) Invalidate(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("invalidate cached result: %w", err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (s *RedisStore[T]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore[T]) Close() error {
	return s.client.Close()
}
