package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"packrat/internal/logger"

	"go.uber.org/zap"
)

// ErrInterrupted is returned when the interrupt check fires mid-scan.
// Callers treat it as a signal, not a failure.
var ErrInterrupted = errors.New("scan interrupted")

// Scan walks every source path, applies the include/exclude globs, and
// returns the absolute paths of the files to back up. Missing or unreadable
// sources are logged and skipped. interrupt is consulted between directories
// so a pause or stop request is honored promptly on deep trees.
func Scan(sources, includes, excludes []string, interrupt func() bool) ([]string, error) {
	var files []string

	for _, source := range sources {
		if interrupt != nil && interrupt() {
			return files, ErrInterrupted
		}

		info, err := os.Stat(source)
		if err != nil {
			logger.Log.Warn("skipping unavailable source",
				zap.String("path", source),
				zap.Error(err))
			continue
		}

		if !info.IsDir() {
			if Match(source, includes, excludes) {
				files = append(files, source)
			}
			continue
		}

		err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Log.Warn("skipping unreadable path",
					zap.String("path", path),
					zap.Error(err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if interrupt != nil && interrupt() {
					return ErrInterrupted
				}
				return nil
			}

			if d.Type().IsRegular() && Match(path, includes, excludes) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return files, err
		}
	}

	return files, nil
}

// Match decides whether a file passes the filter lists. Excludes are checked
// first and win over any include; a non-empty include list requires at least
// one match. Patterns are tested against both the basename and the full path.
func Match(path string, includes, excludes []string) bool {
	for _, pattern := range excludes {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(includes) == 0 {
		return true
	}

	for _, pattern := range includes {
		if matchPattern(pattern, path) {
			return true
		}
	}

	return false
}

func matchPattern(pattern, path string) bool {
	if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
		return true
	}
	ok, err := filepath.Match(pattern, path)
	return err == nil && ok
}
