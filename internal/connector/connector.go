package connector

import (
	"fmt"

	"packrat/internal/checksum"
	"packrat/internal/model"
)

// Result reports the outcome of a single copy.
type Result struct {
	FinalPath string
	Checksum  string
	Bytes     int64
	Skipped   bool
}

// Connector is the capability contract every destination backend implements.
type Connector interface {
	Initialize(config map[string]string) error
	Copy(src, dst string, policy model.ConflictPolicy) (Result, error)
	Exists(path string) bool
	CreateDirectory(path string) error
	Cleanup()
}

// Options carries the pieces a backend needs beyond its target config.
type Options struct {
	Hasher         checksum.Hasher
	RenameRetryCap int
	// Warnf surfaces non-fatal policy decisions (for example the rename
	// cap falling back to overwrite) to the observer.
	Warnf func(format string, args ...any)
}

func New(targetType model.TargetType, opts Options) (Connector, error) {
	if opts.Warnf == nil {
		opts.Warnf = func(string, ...any) {}
	}

	switch targetType {
	case model.TargetLocal:
		return NewLocal(opts), nil
	case model.TargetGDrive:
		return NewGDrive(), nil
	default:
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}
}
