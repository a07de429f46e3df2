package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maturion/ingest/internal/ingest"
)

func TestBlobStore_PutGetRoundtrip(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "uploads/org-1/a.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	require.Contains(t, uri, "file://")

	data, err := store.GetObject(ctx, "uploads/org-1/a.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	_, err = store.GetObject(ctx, "uploads/missing.txt")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestBlobStore_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.txt", "", []byte("x"))
	require.Error(t, err)
}

func TestNew_RequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
