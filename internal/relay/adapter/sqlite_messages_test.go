package adapter_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/relay/adapter"
)

func newMessageStore(t *testing.T) (*adapter.MessageStore, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := adapter.OpenDB(filepath.Join(dir, "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	uploadDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploadDir, 0o755))

	store, err := adapter.NewMessageStore(db, uploadDir, slog.Default())
	require.NoError(t, err)
	return store, uploadDir
}

func textMessage(id string, ts int64) domain.ChatMessage {
	return domain.ChatMessage{
		Kind:      domain.KindText,
		ID:        id,
		SenderID:  "conn-1",
		SenderSID: "sid-1",
		Nickname:  "pat",
		Timestamp: ts,
		Text:      "hello " + id,
	}
}

func fileMessage(id string, ts int64, storedName string) domain.ChatMessage {
	msg := textMessage(id, ts)
	msg.Kind = domain.KindFile
	msg.Text = ""
	msg.URL = "/uploads/" + storedName
	msg.Filename = "original.pdf"
	msg.Mime = "application/pdf"
	msg.Size = 1234
	return msg
}

func touchUpload(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	return path
}

func TestMessageStore_SaveAndRecent(t *testing.T) {
	store, _ := newMessageStore(t)
	ctx := context.Background()

	for i, id := range []string{"msg-a", "msg-b", "msg-c"} {
		require.NoError(t, store.Save(ctx, textMessage(id, int64(1000+i))))
	}

	t.Run("chronological order", func(t *testing.T) {
		items, err := store.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "msg-a", items[0].ID)
		assert.Equal(t, "msg-c", items[2].ID)
	})

	t.Run("limit keeps the newest", func(t *testing.T) {
		items, err := store.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "msg-b", items[0].ID)
		assert.Equal(t, "msg-c", items[1].ID)
	})
}

func TestMessageStore_RoundTripFields(t *testing.T) {
	store, _ := newMessageStore(t)
	ctx := context.Background()

	msg := fileMessage("msg-file", 2000, "abc123.pdf")
	msg.Caption = "quarterly report"
	msg.IsAdmin = true
	msg.AdminMeta = []byte(`{"badge":"gold"}`)
	require.NoError(t, store.Save(ctx, msg))

	id, err := domain.NewMessageID("msg-file")
	require.NoError(t, err)
	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.KindFile, got.Kind)
	assert.Equal(t, "/uploads/abc123.pdf", got.URL)
	assert.Equal(t, "original.pdf", got.Filename)
	assert.Equal(t, "application/pdf", got.Mime)
	assert.Equal(t, int64(1234), got.Size)
	assert.Equal(t, "quarterly report", got.Caption)
	assert.True(t, got.IsAdmin)
	assert.JSONEq(t, `{"badge":"gold"}`, string(got.AdminMeta))
}

func TestMessageStore_GetByIDNotFound(t *testing.T) {
	store, _ := newMessageStore(t)

	id, err := domain.NewMessageID("msg-ghost")
	require.NoError(t, err)
	_, err = store.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageStore_DeleteByID(t *testing.T) {
	store, uploadDir := newMessageStore(t)
	ctx := context.Background()

	stored := touchUpload(t, uploadDir, "gone.bin")
	require.NoError(t, store.Save(ctx, fileMessage("msg-del", 3000, "gone.bin")))

	id, err := domain.NewMessageID("msg-del")
	require.NoError(t, err)
	require.NoError(t, store.DeleteByID(ctx, id))

	_, err = store.GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoFileExists(t, stored)
}

func TestMessageStore_DeleteKeepsSharedAttachment(t *testing.T) {
	store, uploadDir := newMessageStore(t)
	ctx := context.Background()

	stored := touchUpload(t, uploadDir, "shared.png")
	require.NoError(t, store.Save(ctx, fileMessage("msg-one", 1000, "shared.png")))
	require.NoError(t, store.Save(ctx, fileMessage("msg-two", 2000, "shared.png")))

	id, err := domain.NewMessageID("msg-one")
	require.NoError(t, err)
	require.NoError(t, store.DeleteByID(ctx, id))

	// The second message still references the file.
	assert.FileExists(t, stored)
}

func TestMessageStore_PruneToLimit(t *testing.T) {
	store, uploadDir := newMessageStore(t)
	ctx := context.Background()

	oldFile := touchUpload(t, uploadDir, "old.bin")
	newFile := touchUpload(t, uploadDir, "new.bin")

	require.NoError(t, store.Save(ctx, fileMessage("msg-old", 1000, "old.bin")))
	for i, id := range []string{"msg-1", "msg-2", "msg-3"} {
		require.NoError(t, store.Save(ctx, textMessage(id, int64(2000+i))))
	}
	require.NoError(t, store.Save(ctx, fileMessage("msg-new", 5000, "new.bin")))

	require.NoError(t, store.PruneToLimit(ctx, 3))

	items, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "msg-2", items[0].ID)
	assert.Equal(t, "msg-new", items[2].ID)

	// The evicted file message lost its attachment; the surviving one kept it.
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, newFile)
}

func TestMessageStore_PruneUnderLimitIsNoOp(t *testing.T) {
	store, _ := newMessageStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, textMessage("msg-only", 1000)))
	require.NoError(t, store.PruneToLimit(ctx, 100))

	items, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMessageStore_WipeAll(t *testing.T) {
	store, uploadDir := newMessageStore(t)
	ctx := context.Background()

	stored := touchUpload(t, uploadDir, "wiped.jpg")
	require.NoError(t, store.Save(ctx, textMessage("msg-1", 1000)))
	require.NoError(t, store.Save(ctx, fileMessage("msg-2", 2000, "wiped.jpg")))

	count, err := store.WipeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	items, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoFileExists(t, stored)
}
