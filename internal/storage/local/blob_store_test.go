package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectWritesUnderRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(filepath.Join(root, "artifacts"))
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run/abc.html", "text/html", []byte("<p>x</p>"))
	require.NoError(t, err)
	require.Contains(t, uri, "file://")

	data, err := os.ReadFile(filepath.Join(root, "artifacts", "run", "abc.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>x</p>", string(data))
}

func TestPutObjectRejectsBadKeys(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "  ", "../escape.txt", "a/../../b"} {
		_, err := store.PutObject(context.Background(), key, "", []byte("x"))
		require.Error(t, err, key)
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}
