package scanner_test

import (
	"os"
	"path/filepath"
	"testing"

	"packrat/internal/scanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestScan_WalksRecursively(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":             "a",
		"sub/b.txt":         "b",
		"sub/deeper/c.docx": "c",
	})

	files, err := scanner.Scan([]string{root}, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestScan_SingleFileSource(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	files, err := scanner.Scan([]string{filepath.Join(root, "a.txt")}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, files)
}

func TestScan_IncludeFilter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt": "a",
		"b.tmp": "b",
	})

	files, err := scanner.Scan([]string{root}, []string{"*.txt"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, files)
}

func TestScan_ExcludeWinsOverInclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.txt": "k",
		"drop.txt": "d",
	})

	files, err := scanner.Scan([]string{root}, []string{"*.txt"}, []string{"drop.txt"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "keep.txt")}, files)
}

func TestScan_MissingSourceSkipped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	files, err := scanner.Scan([]string{"/nonexistent/path", root}, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestScan_Interrupt(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"one/a.txt": "a",
		"two/b.txt": "b",
	})

	_, err := scanner.Scan([]string{root}, nil, nil, func() bool { return true })
	require.ErrorIs(t, err, scanner.ErrInterrupted)
}

func TestMatch_EmptyIncludeKeepsAll(t *testing.T) {
	assert.True(t, scanner.Match("/docs/a.txt", nil, nil))
	assert.False(t, scanner.Match("/docs/a.txt", nil, []string{"*.txt"}))
}

func TestMatch_FullPathPattern(t *testing.T) {
	assert.True(t, scanner.Match("/docs/a.txt", []string{"/docs/*"}, nil))
	assert.False(t, scanner.Match("/other/a.bin", []string{"/docs/*"}, nil))
}
