// internal/cleanup/cleanup.go
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultRetention is how long work directories are kept when nothing is configured.
const DefaultRetention = 7 * 24 * time.Hour

// Cleaner removes work directories whose modification time is older than the retention window.
type Cleaner struct {
	root      string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewCleaner(root string, retention time.Duration, logger *slog.Logger) *Cleaner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Cleaner{root: root, retention: retention, logger: logger, now: time.Now}
}

// Root returns the shared directory holding every per-repository work directory.
func (c *Cleaner) Root() string {
	return c.root
}

// CleanDir removes dir recursively if it is older than the retention window.
// It reports whether the directory was removed; a missing directory is not an error.
func (c *Cleaner) CleanDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat work directory: %w", err)
	}
	if !info.IsDir() || !c.expired(info) {
		return false, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("remove work directory: %w", err)
	}
	c.logger.Info("Cleaned up work directory", "path", dir)
	return true, nil
}

// Sweep applies CleanDir to every subdirectory of the root and returns the removed paths.
// Failures on single directories are logged and the sweep continues.
func (c *Cleaner) Sweep(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read work root: %w", err)
	}

	c.logger.Info("Cleaning up index files", "root", c.root, "retention", c.retention.String())

	var removed []string
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(c.root, entry.Name())
		ok, err := c.CleanDir(dir)
		if err != nil {
			c.logger.Error("Failed to remove old index directory", "path", dir, "error", err)
			continue
		}
		if ok {
			removed = append(removed, dir)
		}
	}
	return removed, nil
}

func (c *Cleaner) expired(info fs.FileInfo) bool {
	return info.ModTime().Before(c.now().Add(-c.retention))
}
