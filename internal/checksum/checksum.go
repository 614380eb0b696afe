package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const chunkSize = 32 * 1024

// Hasher computes a hex-encoded digest of a file's contents.
type Hasher interface {
	Sum(path string) (string, error)
	Algorithm() string
}

type streamHasher struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns the hasher for the given algorithm. Supported: sha256, blake3.
func New(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", "sha256":
		return &streamHasher{algorithm: "sha256", newHash: func() hash.Hash { return sha256.New() }}, nil
	case "blake3":
		return &streamHasher{algorithm: "blake3", newHash: func() hash.Hash { return blake3.New() }}, nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}
}

// Sum streams the file through the hash in fixed-size chunks, so memory use
// is constant regardless of file size. An unreadable file is an error, never
// an empty digest.
func (h *streamHasher) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	digest := h.newHash()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(digest, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

func (h *streamHasher) Algorithm() string {
	return h.algorithm
}
