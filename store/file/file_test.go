package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/pdfqa/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHistoryStore_New(t *testing.T) {
	t.Parallel()

	t.Run("creates directory if missing", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "history")

		hs, err := NewFileHistoryStore(dir)
		require.NoError(t, err)
		require.NotNil(t, hs)

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})

	t.Run("works with existing directory", func(t *testing.T) {
		t.Parallel()
		hs, err := NewFileHistoryStore(t.TempDir())
		require.NoError(t, err)

		var _ store.HistoryStore = hs
	})
}

func TestFileHistoryStore_AppendAndLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hs, err := NewFileHistoryStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ts := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, hs.Append(ctx, "user/1",
		&store.Message{ID: "1", Role: "human", Content: "What is Amrit Kaal?", Timestamp: ts},
		&store.Message{ID: "2", Role: "ai", Content: "A vision for 2047.", Timestamp: ts, Metadata: map[string]any{"sources": float64(2)}},
	))
	require.NoError(t, hs.Append(ctx, "user/1", &store.Message{ID: "3", Role: "human", Content: "multi\nline"}))

	// reopening the directory sees the same history
	reopened, err := NewFileHistoryStore(dir)
	require.NoError(t, err)

	msgs, err := reopened.Load(ctx, "user/1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "What is Amrit Kaal?", msgs[0].Content)
	assert.True(t, ts.Equal(msgs[0].Timestamp))
	assert.Equal(t, float64(2), msgs[1].Metadata["sources"])
	assert.Equal(t, "multi\nline", msgs[2].Content)

	// the session ID must not escape the directory
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileHistoryStore_SessionsAndClear(t *testing.T) {
	t.Parallel()

	hs, err := NewFileHistoryStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = hs.Load(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	require.NoError(t, hs.Append(ctx, "b", &store.Message{Content: "x"}))
	require.NoError(t, hs.Append(ctx, "a b", &store.Message{Content: "y"}))

	ids, err := hs.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b", "b"}, ids)

	require.NoError(t, hs.Clear(ctx, "b"))
	require.NoError(t, hs.Clear(ctx, "b"))

	_, err = hs.Load(ctx, "b")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	assert.ErrorIs(t, hs.Append(ctx, "", &store.Message{}), store.ErrInvalidSession)
	assert.NoError(t, hs.Close())
}

func TestFileHistoryStore_CorruptLine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hs, err := NewFileHistoryStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte("{not json}\n"), 0o644))

	_, err = hs.Load(context.Background(), "bad")
	assert.ErrorContains(t, err, "line 1")
}
