package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// CleanupOldFiles deletes regular files directly inside transferRoot and
// shareRoot that were last modified before now minus RetentionWindow.
// Missing roots count as empty. It returns the number of files deleted.
func CleanupOldFiles(transferRoot, shareRoot string, now time.Time) int {
	deleted, _ := SweepOldFiles(transferRoot, shareRoot, now)
	return len(deleted)
}

// SweepOldFiles is CleanupOldFiles reporting the deleted paths and the joined
// per-file errors instead of a count.
func SweepOldFiles(transferRoot, shareRoot string, now time.Time) ([]string, error) {
	return CleanupRoots([]string{transferRoot, shareRoot}, now.Add(-RetentionWindow))
}

// CleanupRoots runs CleanupDirectory over each root and collects every deleted
// path. Errors from individual roots are joined; a failing root does not stop
// the others.
func CleanupRoots(roots []string, cutoff time.Time) ([]string, error) {
	var (
		deleted []string
		errs    []error
	)
	for _, root := range roots {
		if root == "" {
			continue
		}
		paths, err := CleanupDirectory(root, cutoff)
		deleted = append(deleted, paths...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return deleted, errors.Join(errs...)
}

// CleanupDirectory deletes regular files directly inside dir whose
// modification time is strictly before cutoff. Subdirectories are not
// descended into.
func CleanupDirectory(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list directory %q: %w", dir, err)
	}

	log := logrus.WithField("dir", dir)
	deleted := make([]string, 0)
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("stat %q: %w", path, err))
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			log.WithError(err).WithField("file", entry.Name()).Warn("Failed to remove expired file")
			errs = append(errs, fmt.Errorf("remove %q: %w", path, err))
			continue
		}
		log.WithFields(logrus.Fields{
			"file":     entry.Name(),
			"modified": info.ModTime().Format(time.RFC3339),
		}).Debug("Removed expired file")
		deleted = append(deleted, path)
	}

	return deleted, errors.Join(errs...)
}
