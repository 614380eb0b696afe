package connector

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"packrat/internal/logger"
	"packrat/internal/model"

	"go.uber.org/zap"
)

const tmpSuffix = ".packrat.tmp"

// Local copies files onto a local filesystem destination. Every copy goes
// through a temporary sibling file, is byte-verified against the source, and
// is renamed into place atomically, so a crash never leaves a half-written
// file at the final path.
type Local struct {
	root string
	opts Options
}

func NewLocal(opts Options) *Local {
	return &Local{opts: opts}
}

func (l *Local) Initialize(config map[string]string) error {
	root := config["path"]
	if root == "" {
		return fmt.Errorf("local target config has no path")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return fmt.Errorf("failed to create target dir: %w", err)
	}

	l.root = absRoot
	return nil
}

func (l *Local) Root() string {
	return l.root
}

func (l *Local) Copy(src, dst string, policy model.ConflictPolicy) (Result, error) {
	if _, err := os.Stat(src); err != nil {
		return Result{}, fmt.Errorf("source unavailable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create parent dir: %w", err)
	}

	// The existence check happens here, immediately before the copy, so the
	// skip policy cannot race against a plan made earlier.
	final, skip := l.resolveConflict(dst, policy)
	if skip {
		return Result{FinalPath: dst, Skipped: true}, nil
	}

	tmp := filepath.Join(filepath.Dir(final), "."+filepath.Base(final)+tmpSuffix)
	bytes, err := l.copyToTemp(src, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return Result{}, err
	}

	srcSum, err := l.opts.Hasher.Sum(src)
	if err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("failed to hash source: %w", err)
	}

	tmpSum, err := l.opts.Hasher.Sum(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("failed to hash copy: %w", err)
	}

	if srcSum != tmpSum {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("checksum mismatch for %s", src)
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("failed to rename into place: %w", err)
	}

	return Result{FinalPath: final, Checksum: srcSum, Bytes: bytes}, nil
}

// resolveConflict picks the path to write, or reports that the copy should
// be skipped. Rename walks _1, _2, ... up to the retry cap and then falls
// back to overwrite with a surfaced warning.
func (l *Local) resolveConflict(dst string, policy model.ConflictPolicy) (string, bool) {
	if !l.Exists(dst) {
		return dst, false
	}

	switch policy {
	case model.PolicySkip:
		return dst, true

	case model.PolicyOverwrite:
		return dst, false

	case model.PolicyRename:
		candidate, ok := NextFreeName(dst, l.opts.RenameRetryCap, l.Exists)
		if !ok {
			l.opts.Warnf("rename cap reached for %s, falling back to overwrite", dst)
			return dst, false
		}
		return candidate, false
	}

	return dst, false
}

func (l *Local) copyToTemp(src, tmp string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open src: %w", err)
	}

	defer func(in *os.File) {
		_ = in.Close()
	}(in)

	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	bytes, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("failed to write: %w", err)
	}

	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	return bytes, nil
}

func (l *Local) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Local) CreateDirectory(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Cleanup sweeps temp files left behind by an interrupted copy.
func (l *Local) Cleanup() {
	if l.root == "" {
		return
	}

	_ = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, tmpSuffix) {
			if err := os.Remove(path); err == nil {
				logger.Log.Debug("removed stale temp file", zap.String("path", path))
			}
		}
		return nil
	})
}

// NextFreeName appends _1, _2, ... before the extension until exists reports
// a free name or the cap is exceeded.
func NextFreeName(dst string, limit int, exists func(string) bool) (string, bool) {
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)

	for counter := 1; counter <= limit; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if !exists(candidate) {
			return candidate, true
		}
	}

	return "", false
}
