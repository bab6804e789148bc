package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackendContract runs the behaviour every Backend shares.
func testBackendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("set-get", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := b.Store("alice")
		require.NoError(s.Set(ctx, "rpflow.state", "st_1"))
		v, ok, err := s.Get(ctx, "rpflow.state")
		require.NoError(err)
		assert.True(ok)
		assert.Equal("st_1", v)

		require.NoError(s.Set(ctx, "rpflow.state", ""))
		v, ok, err = s.Get(ctx, "rpflow.state")
		require.NoError(err)
		assert.True(ok, "an empty value is still set")
		assert.Empty(v)
	})

	t.Run("missing", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, ok, err := b.Store("nobody").Get(ctx, "rpflow.state")
		require.NoError(err)
		assert.False(ok)
		assert.Empty(v)
	})

	t.Run("sessions-are-isolated", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		require.NoError(b.Store("s1").Set(ctx, "rpflow.nonce", "n_1"))
		require.NoError(b.Store("s2").Set(ctx, "rpflow.nonce", "n_2"))
		require.NoError(b.Store("s1").RemoveAll(ctx))

		_, ok, err := b.Store("s1").Get(ctx, "rpflow.nonce")
		require.NoError(err)
		assert.False(ok)
		v, ok, err := b.Store("s2").Get(ctx, "rpflow.nonce")
		require.NoError(err)
		assert.True(ok)
		assert.Equal("n_2", v)
	})

	t.Run("remove-all-empty-session", func(t *testing.T) {
		require.NoError(t, b.Store("never-written").RemoveAll(ctx))
	})
}
