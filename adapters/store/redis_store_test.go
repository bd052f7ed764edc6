package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisStoreTest starts a miniredis instance and returns a store backed by it
func setupRedisStoreTest(t *testing.T, ttl time.Duration) (ports.SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	testSessionStore(t, func(t *testing.T) ports.SessionStore {
		s, _ := setupRedisStoreTest(t, time.Hour)
		return s
	})
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStoreTest(t, time.Minute)

	sess, err := s.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("domainauth:session:"+sess.ID))

	mr.FastForward(2 * time.Minute)

	_, err = s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.ErrorIs(t, s.SetDomain(ctx, sess.ID, "alice."), core.ErrSessionNotFound)
}

func TestRedisStoreRotateSetsTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStoreTest(t, time.Hour)

	sess, err := s.Create(ctx)
	require.NoError(t, err)
	rotated, err := s.Rotate(ctx, sess.ID)
	require.NoError(t, err)

	assert.False(t, mr.Exists("domainauth:session:"+sess.ID))
	assert.Equal(t, time.Hour, mr.TTL("domainauth:session:"+rotated.ID))
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStoreTest(t, time.Hour)

	sess, err := s.Create(ctx)
	require.NoError(t, err)
	mr.Close()

	_, err = s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)

	_, _, err = s.TakeChallenge(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)

	assert.ErrorIs(t, s.Ping(ctx), core.ErrStoreOperationFailed)
}
