package files

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupOldFilesDeletesOnlyExpired(t *testing.T) {
	now := time.Now()
	transferRoot := t.TempDir()

	old := writeFile(t, transferRoot, "old.jpg", []byte("old"))
	fresh := writeFile(t, transferRoot, "fresh.jpg", []byte("fresh"))
	setModTime(t, old, now.Add(-8*24*time.Hour))
	setModTime(t, fresh, now.Add(-24*time.Hour))

	deleted := CleanupOldFiles(transferRoot, filepath.Join(t.TempDir(), "missing"), now)
	assert.Equal(t, 1, deleted)

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestCleanupOldFilesCoversBothRootsAndSkipsSubdirectories(t *testing.T) {
	now := time.Now()
	transferRoot := t.TempDir()
	shareRoot := t.TempDir()
	expired := now.Add(-30 * 24 * time.Hour)

	setModTime(t, writeFile(t, transferRoot, "a.jpg", []byte("a")), expired)
	setModTime(t, writeFile(t, shareRoot, "shared_image_1.jpg", []byte("b")), expired)

	nested := filepath.Join(shareRoot, "nested")
	require.NoError(t, os.Mkdir(nested, 0o700))
	nestedFile := writeFile(t, nested, "deep.jpg", []byte("c"))
	setModTime(t, nestedFile, expired)
	setModTime(t, nested, expired)

	assert.Equal(t, 2, CleanupOldFiles(transferRoot, shareRoot, now))

	_, err := os.Stat(nestedFile)
	assert.NoError(t, err, "cleanup must not descend into subdirectories")
	_, err = os.Stat(nested)
	assert.NoError(t, err)
}

func TestCleanupDirectoryCutoffIsStrict(t *testing.T) {
	dir := t.TempDir()
	cutoff := time.Now().Add(-time.Hour).Truncate(time.Second)
	path := writeFile(t, dir, "edge.png", []byte("x"))
	setModTime(t, path, cutoff)

	deleted, err := CleanupDirectory(dir, cutoff)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestCleanupRootsReturnsDeletedPaths(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.png", []byte("x"))
	setModTime(t, path, time.Now().Add(-10*24*time.Hour))

	deleted, err := CleanupRoots([]string{"", dir, filepath.Join(dir, "missing")}, time.Now().Add(-RetentionWindow))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, deleted)
}

func TestSweepOldFilesMatchesCleanupOldFiles(t *testing.T) {
	now := time.Now()
	build := func() (string, string, string) {
		root := t.TempDir()
		transfer := filepath.Join(root, "Transfer")
		share := filepath.Join(root, "Shared")
		require.NoError(t, EnsureDirectory(transfer))
		require.NoError(t, EnsureDirectory(share))
		old := writeFile(t, transfer, "old.jpg", []byte("o"))
		setModTime(t, old, now.Add(-8*24*time.Hour))
		fresh := writeFile(t, share, "fresh.jpg", []byte("f"))
		setModTime(t, fresh, now.Add(-24*time.Hour))
		return transfer, share, old
	}

	transfer, share, _ := build()
	count := CleanupOldFiles(transfer, share, now)

	transfer, share, old := build()
	deleted, err := SweepOldFiles(transfer, share, now)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, deleted)
	assert.Equal(t, count, len(deleted))
}

func TestLocalResolver(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "r.jpg", []byte("resolved"))

	for _, locator := range []string{path, (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()} {
		rc, err := LocalResolver{}.Open(context.Background(), locator)
		require.NoError(t, err, locator)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "resolved", string(data))
	}

	_, err := LocalResolver{}.Open(context.Background(), "content://media/external/images/42")
	assert.ErrorIs(t, err, ErrUnsupportedLocator)

	_, err = LocalResolver{}.Open(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNotRegularFile)

	_, err = LocalResolver{}.Open(context.Background(), filepath.Join(dir, "none.jpg"))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpenerForFeedsFileSize(t *testing.T) {
	path := writeFile(t, t.TempDir(), "s.jpg", make([]byte, 4097))
	assert.Equal(t, int64(4097), FileSize(OpenerFor(context.Background(), LocalResolver{}, path)))
	assert.Equal(t, int64(0), FileSize(OpenerFor(context.Background(), nil, path)))
}

func setModTime(t *testing.T, path string, when time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, when, when))
}
