package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSessionStore runs the behaviour every SessionStore must provide
func testSessionStore(t *testing.T, newStore func(t *testing.T) ports.SessionStore) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.False(t, got.Authenticated())
		assert.Empty(t, got.Challenge)
		assert.False(t, got.ExpiresAt.IsZero())
	})

	t.Run("GetUnknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("SetChallengeOverwrites", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Create(ctx)
		require.NoError(t, err)

		require.NoError(t, s.SetChallenge(ctx, sess.ID, "c1", "alice."))
		require.NoError(t, s.SetChallenge(ctx, sess.ID, "c2", "bob."))

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "c2", got.Challenge)
		assert.Equal(t, "bob.", got.PendingDomain)
	})

	t.Run("SetChallengeUnknown", func(t *testing.T) {
		s := newStore(t)
		err := s.SetChallenge(ctx, "does-not-exist", "c1", "alice.")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)

		_, err = s.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("TakeChallengeIsSingleUse", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Create(ctx)
		require.NoError(t, err)
		require.NoError(t, s.SetChallenge(ctx, sess.ID, "c1", "alice."))

		challenge, domain, err := s.TakeChallenge(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "c1", challenge)
		assert.Equal(t, "alice.", domain)

		challenge, domain, err = s.TakeChallenge(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, challenge)
		assert.Empty(t, domain)
	})

	t.Run("TakeChallengeUnknown", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.TakeChallenge(ctx, "does-not-exist")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("RotateInvalidatesOldID", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Create(ctx)
		require.NoError(t, err)
		require.NoError(t, s.SetChallenge(ctx, sess.ID, "c1", "alice."))

		rotated, err := s.Rotate(ctx, sess.ID)
		require.NoError(t, err)
		assert.NotEqual(t, sess.ID, rotated.ID)
		assert.Empty(t, rotated.Challenge)
		assert.Empty(t, rotated.Domain)

		_, err = s.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)

		require.NoError(t, s.SetDomain(ctx, rotated.ID, "alice."))
		got, err := s.Get(ctx, rotated.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice.", got.Domain)
		assert.Empty(t, got.Challenge)

		assert.ErrorIs(t, s.SetDomain(ctx, sess.ID, "alice."), core.ErrSessionNotFound)
	})

	t.Run("RotateUnknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Rotate(ctx, "does-not-exist")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("DestroyIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Create(ctx)
		require.NoError(t, err)
		require.NoError(t, s.SetDomain(ctx, sess.ID, "alice."))

		require.NoError(t, s.Destroy(ctx, sess.ID))
		require.NoError(t, s.Destroy(ctx, sess.ID))

		_, err = s.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("ConcurrentSetChallenge", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Create(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.SetChallenge(ctx, sess.ID, fmt.Sprintf("c%d", i), fmt.Sprintf("d%d.", i)))
			}(i)
		}
		wg.Wait()

		// last writer wins, but challenge and domain always come from the same write
		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		var n int
		_, err = fmt.Sscanf(got.Challenge, "c%d", &n)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("d%d.", n), got.PendingDomain)
	})

	t.Run("ConcurrentRotateSingleWinner", func(t *testing.T) {
		s := newStore(t)
		sess, err := s.Create(ctx)
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Rotate(ctx, sess.ID); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
	})
}
