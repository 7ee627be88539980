package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

type sample struct {
	Total int64  `json:"total"`
	Label string `json:"label"`
}

func newTestRedisStore(t *testing.T) (*RedisStore[sample], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore[sample](client, time.Minute), mr
}

func TestRedisStore_StoreLoad(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "g1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := s.Store(ctx, "g1", 1, sample{Total: 1200, Label: "one"})
	require.NoError(t, err)
	assert.True(t, stored)

	v, ok, err := s.Load(ctx, "g1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sample{Total: 1200, Label: "one"}, v)

	_, ok, err = s.Load(ctx, "g1", 2)
	require.NoError(t, err)
	assert.False(t, ok, "fingerprint mismatch must miss")
}

func TestRedisStore_RefusesStalerPublish(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	fresh := int64(1_700_000_000_000_000_123)
	_, err := s.Store(ctx, "g1", 1_700_000_000_000_000_124, sample{Label: "newest"})
	require.NoError(t, err)

	stored, err := s.Store(ctx, "g1", core.Fingerprint(fresh), sample{Label: "older"})
	require.NoError(t, err)
	assert.False(t, stored, "nanosecond-close older fingerprint must not win")

	v, ok, err := s.Load(ctx, "g1", 1_700_000_000_000_000_124)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "newest", v.Label)
}

func TestRedisStore_TTLAndInvalidate(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "g1", 5, sample{Label: "x"})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"g1"))

	mr.FastForward(time.Minute + time.Second)
	_, ok, err := s.Load(ctx, "g1", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Store(ctx, "g1", 6, sample{Label: "y"})
	require.NoError(t, err)
	require.NoError(t, s.Invalidate(ctx, "g1"))
	_, ok, err = s.Load(ctx, "g1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Ping(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
