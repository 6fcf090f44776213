package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Marks(t *testing.T) {
	s := NewState()
	assert.False(t, s.IsLinkProcessed("l1"))

	s.MarkLinkProcessed("l2")
	s.MarkLinkProcessed("l1")
	s.MarkLinkProcessed("l1")
	s.MarkMediaDelivered("20241016_a.jpg")

	assert.True(t, s.IsLinkProcessed("l1"))
	assert.True(t, s.IsMediaDelivered("20241016_a.jpg"))
	assert.False(t, s.IsMediaDelivered("20241016_b.jpg"))
	assert.Equal(t, []string{"l1", "l2"}, s.ProcessedLinks())
	assert.Equal(t, []string{"20241016_a.jpg"}, s.DeliveredMedia())
}

func TestJSONStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.ProcessedLinks(), "fresh store should load empty")

	state.MarkLinkProcessed("https://twitter.com/a/status/2")
	state.MarkLinkProcessed("https://twitter.com/a/status/1")
	state.MarkMediaDelivered("20241016_x.jpg")
	require.NoError(t, store.Flush(ctx, state))

	reopened, err := NewJSONStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.IsLinkProcessed("https://twitter.com/a/status/1"))
	assert.True(t, loaded.IsLinkProcessed("https://twitter.com/a/status/2"))
	assert.True(t, loaded.IsMediaDelivered("20241016_x.jpg"))

	raw, err := os.ReadFile(filepath.Join(dir, processedLinksFile))
	require.NoError(t, err)
	assert.JSONEq(t, `["https://twitter.com/a/status/1","https://twitter.com/a/status/2"]`, string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files should be left behind")
}

func TestJSONStore_CorruptFileLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, processedLinksFile), []byte(`["half`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, deliveredMediaFile), []byte(`["ok.jpg"]`), 0o644))

	store, err := NewJSONStore(dir)
	require.NoError(t, err)
	state, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, state.ProcessedLinks())
	assert.True(t, state.IsMediaDelivered("ok.jpg"))
}

func TestJSONStore_FlushKeepsPreviousSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	state := NewState()
	state.MarkLinkProcessed("l1")
	require.NoError(t, store.Flush(ctx, state))

	// A directory in place of the target makes the rename fail.
	require.NoError(t, os.Remove(filepath.Join(dir, deliveredMediaFile)))
	require.NoError(t, os.Mkdir(filepath.Join(dir, deliveredMediaFile), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, deliveredMediaFile, "keep"), nil, 0o644))

	state.MarkLinkProcessed("l2")
	state.MarkMediaDelivered("m1")
	assert.Error(t, store.Flush(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.IsLinkProcessed("l1"))
}

func setupBadger(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(dir)
	require.NoError(t, err, "Failed to open test BadgerDB")
	return store
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := setupBadger(t, dir)
	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.ProcessedLinks())

	state.MarkLinkProcessed("https://twitter.com/a/status/1")
	state.MarkMediaDelivered("20241016_x.jpg")
	require.NoError(t, store.Flush(ctx, state))

	state.MarkLinkProcessed("https://twitter.com/a/status/2")
	require.NoError(t, store.Flush(ctx, state))
	require.NoError(t, store.Close())

	reopened := setupBadger(t, dir)
	defer func() {
		assert.NoError(t, reopened.Close())
	}()
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://twitter.com/a/status/1", "https://twitter.com/a/status/2"}, loaded.ProcessedLinks())
	assert.Equal(t, []string{"20241016_x.jpg"}, loaded.DeliveredMedia())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "redis", t.TempDir(), "")
	assert.Error(t, err)

	store, err := Open(context.Background(), "", t.TempDir(), "")
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, store)
}
