package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetta-ai/vetta/internal/domain"
	"github.com/vetta-ai/vetta/internal/store/blob"
)

func TestFSStore_UploadGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		store, err := blob.NewFSStore(t.TempDir())
		require.NoError(t, err)

		result, err := store.Upload(ctx, "sessions/2026/01/02/abc/events.json.gz", []byte("payload"))
		require.NoError(t, err)
		assert.Equal(t, "sessions/2026/01/02/abc/events.json.gz", result.Key)
		assert.Equal(t, int64(7), result.Size)

		data, err := store.Get(ctx, "sessions/2026/01/02/abc/events.json.gz")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
	})

	t.Run("overwrite replaces content", func(t *testing.T) {
		t.Parallel()

		store, err := blob.NewFSStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Upload(ctx, "k", []byte("v1"))
		require.NoError(t, err)
		_, err = store.Upload(ctx, "k", []byte("v2"))
		require.NoError(t, err)

		data, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		store, err := blob.NewFSStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Get(ctx, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("no partial blob is left behind", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		store, err := blob.NewFSStore(dir)
		require.NoError(t, err)

		_, err = store.Upload(ctx, "a/b", []byte("data"))
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(dir, "a", "b.tmp"))
		assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
	})
}

func TestFSStore_RejectsBadKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	tests := []string{
		"",
		"../outside",
		"a/../../outside",
	}

	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			_, err := store.Upload(ctx, key, []byte("x"))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			_, err = store.Get(ctx, key)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestFSStore_ContextCancellation(t *testing.T) {
	t.Parallel()

	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Upload(ctx, "k", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
