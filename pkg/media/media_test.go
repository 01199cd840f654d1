package media

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndSweep(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/media")
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), strings.NewReader("ID3fake"), ".mp3")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref.URL, "/media/"))
	assert.True(t, strings.HasSuffix(ref.URL, ".mp3"))

	data, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, "ID3fake", string(data))

	removed, err := store.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(ref.Path, old, old))
	removed, err = store.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, ref.Path)
}

func TestStore_SaveCancelled(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/media/")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, strings.NewReader("data"), "wav")
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJanitor_InvalidSpec(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/media/")
	require.NoError(t, err)

	_, err = NewJanitor(store, "not a spec", time.Hour)
	assert.Error(t, err)

	j, err := NewJanitor(store, "@every 1h", time.Hour)
	require.NoError(t, err)
	j.Start()
	j.Stop()
}
