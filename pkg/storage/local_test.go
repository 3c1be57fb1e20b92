package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageReadWrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "a/b/file.md", []byte("content")))

	data, err := store.Read(ctx, "a/b/file.md")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	ok, err := store.Exists(ctx, "a/b/file.md")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStorageReadMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read(ctx, "missing.md")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists(ctx, "missing.md")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "one.md", []byte("1")))
	require.NoError(t, store.Write(ctx, "sub/two.md", []byte("2")))

	// Listing is not recursive; only files directly under the prefix
	// are returned.
	paths, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"one.md"}, paths)

	paths, err = store.List(ctx, "sub")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/two.md"}, paths)
}

func TestLocalStorageDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "gone.md", []byte("x")))
	require.NoError(t, store.Delete(ctx, "gone.md"))

	_, err = store.Read(ctx, "gone.md")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "gone.md"), ErrNotFound)
}
