package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"packrat/internal/connector"
	"packrat/internal/logger"
	"packrat/internal/model"
	"packrat/internal/planner"
	"packrat/internal/scanner"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// interFileBreather keeps a tight loop of tiny files from saturating the
// disk and starving the callback consumer.
const interFileBreather = 50 * time.Millisecond

// run is the worker goroutine driving one execution end to end. Everything
// here is synchronous; pause and stop take effect between files.
func (e *Engine) run(job model.Job, ctrl *controls, done chan struct{}) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.snap.Running = false
		e.snap.CurrentFile = ""
		e.mu.Unlock()
		close(done)
	}()

	e.logf("starting backup job: %s", job.Name)

	exec, resumed, err := e.openExecution(job.ID)
	if err != nil {
		e.logf("backup failed: %v", err)
		return
	}

	e.updateSnapshot(func(s *Snapshot) { s.ExecutionID = exec.ID })

	onPause := func() {
		if err := e.execs.MarkPaused(exec.ID); err != nil {
			logger.Log.Error("failed to persist pause checkpoint", zap.Error(err))
		}
		e.logf("backup paused")
	}
	onResume := func() {
		if err := e.execs.MarkRunning(exec.ID, true); err != nil {
			logger.Log.Error("failed to persist resume", zap.Error(err))
		}
		e.logf("backup resumed")
	}

	completed := make(map[string]bool)
	if resumed {
		e.logf("resuming from previous paused execution")
		completed, err = e.transfers.CompletedSources(exec.ID)
		if err != nil {
			e.fail(exec.ID, fmt.Errorf("failed to load completed transfers: %w", err))
			return
		}
	}

	conn, destRoot, err := e.openConnector(job)
	if err != nil {
		e.fail(exec.ID, err)
		return
	}
	defer conn.Cleanup()

	e.logf("scanning source files...")
	files, verdict, err := e.scan(job, ctrl, onPause, onResume)
	if verdict != keepGoing {
		e.finalizeInterrupted(exec.ID, verdict)
		return
	}
	if err != nil {
		e.fail(exec.ID, fmt.Errorf("scan failed: %w", err))
		return
	}

	if len(files) == 0 {
		e.logf("no files found to back up")
		e.finalize(exec.ID, 0)
		return
	}

	// Totals come from the full scanned set, recorded once when a brand-new
	// execution starts, so progress percentages stay stable across
	// pause/resume cycles.
	total := exec.TotalFiles
	if !resumed {
		total = len(files)
		if err := e.execs.SetTotals(exec.ID, total, totalSize(files)); err != nil {
			e.fail(exec.ID, fmt.Errorf("failed to record totals: %w", err))
			return
		}
	}

	plan := planner.New(conn, e.hasher, e.cfg.RenameRetryCap, e.logf).
		Plan(job, files, completed, destRoot)

	e.logf("found %d total files, %d remaining", len(files), len(plan))

	if len(plan) == 0 {
		e.logf("all files already completed")
		e.finalize(exec.ID, exec.FailedFiles)
		return
	}

	processed := exec.ProcessedFiles
	failed := exec.FailedFiles
	transferred := exec.TransferredBytes

	for _, item := range plan {
		if v := ctrl.checkpoint(onPause, onResume); v != keepGoing {
			e.finalizeInterrupted(exec.ID, v)
			return
		}

		e.progress(processed, total, "Copying "+filepath.Base(item.Source))

		ok, err := e.transferOne(exec.ID, item, conn, job.ConflictPolicy)
		if err != nil {
			e.fail(exec.ID, err)
			return
		}

		processed++
		if ok {
			transferred += item.Size
			e.logf("copied: %s", filepath.Base(item.Source))
		} else {
			failed++
			e.logf("failed to copy: %s", filepath.Base(item.Source))
		}

		e.updateSnapshot(func(s *Snapshot) { s.Failed = failed })
		if err := e.execs.RecordProgress(exec.ID, processed, failed, transferred); err != nil {
			e.fail(exec.ID, fmt.Errorf("failed to record progress: %w", err))
			return
		}

		time.Sleep(interFileBreather)
	}

	if v := ctrl.checkpoint(onPause, onResume); v != keepGoing {
		e.finalizeInterrupted(exec.ID, v)
		return
	}

	e.progress(total, total, "Backup completed")
	e.finalize(exec.ID, failed)
	e.logf("backup completed: %d processed, %d failed", processed, failed)
}

// openExecution resumes the latest paused execution for the job, or creates
// a fresh running one.
func (e *Engine) openExecution(jobID uint) (model.Execution, bool, error) {
	exec, err := e.execs.FindPaused(jobID)
	if err == nil {
		if err := e.execs.MarkRunning(exec.ID, true); err != nil {
			return exec, false, fmt.Errorf("failed to resume execution: %w", err)
		}
		return exec, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return exec, false, fmt.Errorf("failed to look up paused execution: %w", err)
	}

	exec = model.Execution{
		JobID:     jobID,
		Status:    model.ExecutionRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.execs.Create(&exec); err != nil {
		return exec, false, fmt.Errorf("failed to create execution: %w", err)
	}
	return exec, false, nil
}

func (e *Engine) openConnector(job model.Job) (connector.Connector, string, error) {
	targetCfg, err := job.TargetConfigMap()
	if err != nil {
		return nil, "", err
	}

	conn, err := connector.New(job.TargetType, connector.Options{
		Hasher:         e.hasher,
		RenameRetryCap: e.cfg.RenameRetryCap,
		Warnf:          e.logf,
	})
	if err != nil {
		return nil, "", err
	}

	if err := conn.Initialize(targetCfg); err != nil {
		return nil, "", fmt.Errorf("failed to initialize %s target: %w", job.TargetType, err)
	}

	return conn, targetCfg["path"], nil
}

// scan walks the sources, honoring pause between directories. A pause during
// the walk parks the worker and restarts the scan on resume, so the file set
// is never half-stale.
func (e *Engine) scan(job model.Job, ctrl *controls, onPause, onResume func()) ([]string, verdict, error) {
	sources, err := job.SourceList()
	if err != nil {
		return nil, keepGoing, err
	}

	includes := model.SplitPatterns(job.IncludePatterns)
	excludes := model.SplitPatterns(job.ExcludePatterns)

	for {
		files, err := scanner.Scan(sources, includes, excludes, ctrl.interrupted)
		if errors.Is(err, scanner.ErrInterrupted) {
			if v := ctrl.checkpoint(onPause, onResume); v != keepGoing {
				return nil, v, nil
			}
			continue
		}
		return files, keepGoing, err
	}
}

// transferOne copies a single planned item and records the outcome. A copy
// or verification failure is recorded and reported as ok=false; only ledger
// write failures return an error, which aborts the execution.
func (e *Engine) transferOne(execID uint, item planner.Item, conn connector.Connector, policy model.ConflictPolicy) (bool, error) {
	already, err := e.transfers.HasCompleted(execID, item.Source)
	if err != nil {
		return false, fmt.Errorf("failed to check transfer state: %w", err)
	}
	if already {
		return true, nil
	}

	now := time.Now().UTC()
	record := model.Transfer{
		ExecutionID: execID,
		SourcePath:  item.Source,
		TargetPath:  item.Target,
		FileSize:    item.Size,
		Status:      model.TransferInProgress,
		StartedAt:   &now,
	}
	if err := e.transfers.Create(&record); err != nil {
		return false, fmt.Errorf("failed to create transfer record: %w", err)
	}

	res, err := conn.Copy(item.Source, item.Target, policy)
	if err != nil {
		logger.Log.Warn("transfer failed",
			zap.String("src", item.Source),
			zap.Error(err))
		if mErr := e.transfers.MarkFailed(record.ID, err.Error()); mErr != nil {
			return false, fmt.Errorf("failed to record transfer failure: %w", mErr)
		}
		return false, nil
	}

	if res.Skipped {
		e.logf("skipped existing file: %s", res.FinalPath)
		if err := e.transfers.MarkSkipped(record.ID, res.FinalPath); err != nil {
			return false, fmt.Errorf("failed to record skipped transfer: %w", err)
		}
		return true, nil
	}

	if err := e.transfers.MarkCompleted(record.ID, res.FinalPath, res.Checksum, res.Bytes); err != nil {
		return false, fmt.Errorf("failed to record completed transfer: %w", err)
	}
	return true, nil
}

// finalize closes out an uninterrupted run: completed when nothing failed,
// completed_with_errors otherwise.
func (e *Engine) finalize(execID uint, failed int) {
	status := model.ExecutionCompleted
	if failed > 0 {
		status = model.ExecutionCompletedWithErrors
	}
	if err := e.execs.MarkTerminal(execID, status, ""); err != nil {
		logger.Log.Error("failed to finalize execution", zap.Error(err))
	}
}

func (e *Engine) finalizeInterrupted(execID uint, v verdict) {
	switch v {
	case stopRequested:
		if err := e.execs.MarkTerminal(execID, model.ExecutionCancelled, "cancelled by user"); err != nil {
			logger.Log.Error("failed to mark execution cancelled", zap.Error(err))
		}
		e.logf("backup cancelled by user")
	case quitRequested:
		// Checkpoint already persisted as paused by the quit path.
		e.logf("backup parked for shutdown")
	}
}

// fail marks the execution failed, best effort, and surfaces the error.
func (e *Engine) fail(execID uint, err error) {
	e.logf("backup failed: %v", err)
	if mErr := e.execs.MarkTerminal(execID, model.ExecutionFailed, err.Error()); mErr != nil {
		logger.Log.Error("failed to mark execution failed", zap.Error(mErr))
	}
}

func totalSize(files []string) int64 {
	var total int64
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			total += info.Size()
		}
	}
	return total
}
