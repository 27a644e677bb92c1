package adapter_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/chat-relay/internal/relay/adapter"
	"github.com/aelexs/chat-relay/internal/relay/app"
)

func newStateStore(t *testing.T) *adapter.StateStore {
	t.Helper()

	db, err := adapter.OpenDB(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := adapter.NewStateStore(db)
	require.NoError(t, err)
	return store
}

func TestStateStore_Bans(t *testing.T) {
	store := newStateStore(t)
	ctx := context.Background()

	t.Run("empty store loads no bans", func(t *testing.T) {
		bans, err := store.LoadBans(ctx)
		require.NoError(t, err)
		assert.Empty(t, bans)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		require.NoError(t, store.SaveBan(ctx, app.AdminBan{
			StableID:    "sid-1",
			Until:       99000,
			By:          "mod-amy",
			Reason:      "spam",
			ByModerator: true,
		}))

		bans, err := store.LoadBans(ctx)
		require.NoError(t, err)
		require.Len(t, bans, 1)
		assert.Equal(t, "sid-1", bans[0].StableID)
		assert.Equal(t, int64(99000), bans[0].Until)
		assert.Equal(t, "mod-amy", bans[0].By)
		assert.Equal(t, "spam", bans[0].Reason)
		assert.True(t, bans[0].ByModerator)
	})

	t.Run("saving again upserts", func(t *testing.T) {
		require.NoError(t, store.SaveBan(ctx, app.AdminBan{
			StableID: "sid-1",
			Until:    200000,
			By:       "admin-bo",
		}))

		bans, err := store.LoadBans(ctx)
		require.NoError(t, err)
		require.Len(t, bans, 1)
		assert.Equal(t, int64(200000), bans[0].Until)
		assert.Equal(t, "admin-bo", bans[0].By)
		assert.False(t, bans[0].ByModerator)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		require.NoError(t, store.DeleteBan(ctx, "sid-1"))
		bans, err := store.LoadBans(ctx)
		require.NoError(t, err)
		assert.Empty(t, bans)
	})

	t.Run("deleting an absent ban is fine", func(t *testing.T) {
		assert.NoError(t, store.DeleteBan(ctx, "sid-never-existed"))
	})
}

func TestStateStore_ChatLock(t *testing.T) {
	store := newStateStore(t)
	ctx := context.Background()

	locked, err := store.LoadChatLock(ctx)
	require.NoError(t, err)
	assert.False(t, locked, "absent setting means unlocked")

	require.NoError(t, store.SaveChatLock(ctx, true))
	locked, err = store.LoadChatLock(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, store.SaveChatLock(ctx, false))
	locked, err = store.LoadChatLock(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
}
