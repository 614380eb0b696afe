package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"packrat/internal/checksum"
	"packrat/internal/connector"
	"packrat/internal/logger"
	"packrat/internal/model"

	"go.uber.org/zap"
)

// Item is one planned file transfer.
type Item struct {
	Source string
	Target string
	Size   int64
}

// Planner maps scanned source files to destination paths under the job's
// conflict policy.
type Planner struct {
	conn           connector.Connector
	hasher         checksum.Hasher
	renameRetryCap int
	warnf          func(format string, args ...any)
}

func New(conn connector.Connector, hasher checksum.Hasher, renameRetryCap int, warnf func(string, ...any)) *Planner {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &Planner{
		conn:           conn,
		hasher:         hasher,
		renameRetryCap: renameRetryCap,
		warnf:          warnf,
	}
}

// Plan produces the ordered transfer list for one execution. Sources already
// completed for this execution are excluded, as are files whose verified copy
// already sits at the destination (equal digests mean equal files, so there
// is nothing to re-copy). Directory structure is flattened: every file lands
// in destRoot/jobName/<basename>, and basename collisions are resolved by the
// conflict policy. Skip is not resolved here; the connector checks existence
// immediately before the copy so planning cannot race against execution.
func (p *Planner) Plan(job model.Job, files []string, completed map[string]bool, destRoot string) []Item {
	targetDir := filepath.Join(destRoot, job.Name)
	claimed := make(map[string]bool)
	var items []Item

	for _, source := range files {
		if completed[source] {
			continue
		}

		target := filepath.Join(targetDir, filepath.Base(source))
		target, drop := p.resolveTarget(source, target, job.ConflictPolicy, claimed)
		if drop {
			logger.Log.Debug("already at destination, dropping from plan",
				zap.String("path", source))
			continue
		}

		info, err := os.Stat(source)
		if err != nil {
			logger.Log.Warn("dropping unreadable file from plan",
				zap.String("path", source),
				zap.Error(err))
			continue
		}

		claimed[target] = true
		items = append(items, Item{Source: source, Target: target, Size: info.Size()})
	}

	return items
}

func (p *Planner) resolveTarget(source, target string, policy model.ConflictPolicy, claimed map[string]bool) (string, bool) {
	taken := func(path string) bool {
		return claimed[path] || p.conn.Exists(path)
	}

	switch policy {
	case model.PolicyRename:
		// Walk target, target_1, target_2, ... A candidate that already
		// holds a byte-identical copy ends the search: nothing to re-copy.
		for counter := 0; counter <= p.renameRetryCap; counter++ {
			candidate := suffixed(target, counter)
			if !taken(candidate) {
				return candidate, false
			}
			if !claimed[candidate] && p.identical(source, candidate) {
				return "", true
			}
		}
		p.warnf("rename cap reached for %s, falling back to overwrite", target)
		return target, false

	case model.PolicyOverwrite:
		if !claimed[target] && p.identical(source, target) {
			return "", true
		}
		return target, false

	default:
		return target, false
	}
}

// suffixed appends _<counter> before the extension; counter 0 is the
// unmodified path.
func suffixed(target string, counter int) string {
	if counter == 0 {
		return target
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	return fmt.Sprintf("%s_%d%s", stem, counter, ext)
}

// identical reports whether an existing destination file has the same digest
// as the source.
func (p *Planner) identical(source, target string) bool {
	if !p.conn.Exists(target) {
		return false
	}

	srcSum, err := p.hasher.Sum(source)
	if err != nil {
		return false
	}
	dstSum, err := p.hasher.Sum(target)
	if err != nil {
		return false
	}
	return srcSum == dstSum
}
