// internal/cleanup/cleanup_test.go
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDir(t *testing.T, root, name string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nexus-maven-repository-index.gz"), []byte("X"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func TestCleaner_CleanDir(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	t.Run("removes a directory older than the retention window", func(t *testing.T) {
		root := t.TempDir()
		dir := makeDir(t, root, "central", 48*time.Hour)
		c := NewCleaner(root, 24*time.Hour, logger)

		removed, err := c.CleanDir(dir)

		require.NoError(t, err)
		assert.True(t, removed)
		assert.NoDirExists(t, dir)
	})

	t.Run("keeps a directory within the retention window", func(t *testing.T) {
		root := t.TempDir()
		dir := makeDir(t, root, "central", time.Hour)
		c := NewCleaner(root, 24*time.Hour, logger)

		removed, err := c.CleanDir(dir)

		require.NoError(t, err)
		assert.False(t, removed)
		assert.DirExists(t, dir)
	})

	t.Run("missing directory is a no-op", func(t *testing.T) {
		c := NewCleaner(t.TempDir(), 24*time.Hour, logger)

		removed, err := c.CleanDir(filepath.Join(c.Root(), "nope"))

		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("zero retention uses seven days", func(t *testing.T) {
		root := t.TempDir()
		dir := makeDir(t, root, "central", 6*24*time.Hour)
		c := NewCleaner(root, 0, logger)

		removed, err := c.CleanDir(dir)

		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestCleaner_Sweep(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	root := t.TempDir()
	old := makeDir(t, root, "old-repo", 48*time.Hour)
	fresh := makeDir(t, root, "fresh-repo", time.Minute)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))
	c := NewCleaner(root, 24*time.Hour, logger)

	removed, err := c.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(root, "stray.txt"))
}

func TestCleaner_SweepMissingRoot(t *testing.T) {
	c := NewCleaner(filepath.Join(t.TempDir(), "absent"), time.Hour, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	removed, err := c.Sweep(context.Background())

	require.NoError(t, err)
	assert.Empty(t, removed)
}
