package diskblob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgmirror/core/internal/ports"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	body := "zip-bytes"
	require.NoError(t, store.Put(context.Background(), "public/packagist/vendor/pkg/1.0.0.zip", strings.NewReader(body), int64(len(body))))

	rc, size, err := store.Get(context.Background(), "public/packagist/vendor/pkg/1.0.0.zip")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(len(body)), size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestGetMissing(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "public/packagist/vendor/pkg/9.9.9.zip")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestExists(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "missing.zip")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(context.Background(), "present.zip", strings.NewReader("x"), 1))
	ok, err = store.Exists(context.Background(), "present.zip")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "k.zip", strings.NewReader("x"), 1))
	require.NoError(t, store.Delete(context.Background(), "k.zip"))

	_, _, err = store.Get(context.Background(), "k.zip")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRejectsPathTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}
