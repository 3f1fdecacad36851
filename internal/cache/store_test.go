package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutAndOpen(t *testing.T) {
	store, _ := newTestStore(t)
	path := "/cache/ui/texture/icons/1_64_1.png"

	modTime := time.Now().Add(-time.Hour).UTC()
	payload := []byte("payload")
	entry, err := store.Put(context.Background(), path, bytes.NewReader(payload), PutOptions{ModTime: modTime})
	require.NoError(t, err)
	assert.Equal(t, md5Hex(payload), entry.Digest)

	result, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, int64(len(payload)), result.Entry.SizeBytes)
	assert.True(t, result.Entry.ModTime.Equal(modTime), "modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
}

func TestStoreRelativePathResolvesUnderRoot(t *testing.T) {
	store, _ := newTestStore(t)
	entry, err := store.Put(context.Background(), "staticdata/regions.static", strings.NewReader("x"), PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "staticdata", "regions.static"), entry.FilePath)

	ok, err := store.Exists(context.Background(), entry.FilePath)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreChecksumMatchIgnoresCase(t *testing.T) {
	store, _ := newTestStore(t)
	payload := []byte("verified body")
	sum := strings.ToUpper(md5Hex(payload))
	_, err := store.Put(context.Background(), "/cache/a/b.bin", bytes.NewReader(payload), PutOptions{Checksum: sum})
	assert.NoError(t, err, "upper-case checksum should verify")
}

func TestStoreChecksumMismatchLeavesNothing(t *testing.T) {
	store, fsys := newTestStore(t)
	_, err := store.Put(context.Background(), "/cache/a/b.bin", strings.NewReader("tampered"), PutOptions{Checksum: md5Hex([]byte("original"))})
	var mismatch *ChecksumError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, md5Hex([]byte("tampered")), mismatch.Actual)

	ok, _ := store.Exists(context.Background(), "/cache/a/b.bin")
	assert.False(t, ok, "mismatched body must not be published")
	entries, err := afero.ReadDir(fsys, "/cache/a")
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed")
}

func TestStoreOpenMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Open(context.Background(), "/cache/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRemove(t *testing.T) {
	store, _ := newTestStore(t)
	path := "/cache/remove/me"
	_, err := store.Put(context.Background(), path, bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)
	require.NoError(t, store.Remove(context.Background(), path))

	_, err = store.Open(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Remove(context.Background(), path), "second remove should be a no-op")
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store, fsys := newTestStore(t)
	require.NoError(t, fsys.MkdirAll("/cache/ui/texture", 0o755))

	ok, _ := store.Exists(context.Background(), "/cache/ui/texture")
	assert.False(t, ok, "directory must not count as a cache hit")
	_, err := store.Open(context.Background(), "/cache/ui/texture")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsEscapingPaths(t *testing.T) {
	store, _ := newTestStore(t)
	for _, p := range []string{"/etc/passwd", "../outside", "/cache"} {
		_, err := store.Put(context.Background(), p, strings.NewReader("x"), PutOptions{})
		assert.ErrorIs(t, err, ErrOutsideRoot, p)
	}
}

func TestStorePutHonoursCancellation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Put(ctx, "/cache/cancelled", strings.NewReader("x"), PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	ok, _ := store.Exists(context.Background(), "/cache/cancelled")
	assert.False(t, ok, "cancelled write must not be published")
}

func TestNewStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "x", "y.txt")
	_, err = store.Put(context.Background(), path, strings.NewReader("disk"), PutOptions{})
	require.NoError(t, err)
	ok, _ := store.Exists(context.Background(), path)
	assert.True(t, ok, "expected file on disk")
}

// newTestStore returns a Store backed by an in-memory filesystem rooted at /cache.
func newTestStore(t *testing.T) (Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store, err := NewStore(fsys, "/cache")
	require.NoError(t, err)
	return store, fsys
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
