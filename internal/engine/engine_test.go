package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"packrat/internal/config"
	"packrat/internal/db"
	"packrat/internal/engine"
	"packrat/internal/model"
	"packrat/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const waitFor = 5 * time.Second

type fixture struct {
	gdb       *gorm.DB
	eng       *engine.Engine
	execs     *repository.ExecutionRepository
	transfers *repository.TransferRepository
	srcDir    string
	destRoot  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := db.Open(filepath.Join(t.TempDir(), "packrat.db"))
	require.NoError(t, err)

	cfg := &config.Config{ChecksumAlgorithm: "sha256", RenameRetryCap: 9999}
	eng, err := engine.New(gdb, cfg)
	require.NoError(t, err)

	return &fixture{
		gdb:       gdb,
		eng:       eng,
		execs:     repository.NewExecutionRepository(gdb),
		transfers: repository.NewTransferRepository(gdb),
		srcDir:    t.TempDir(),
		destRoot:  t.TempDir(),
	}
}

func (f *fixture) addJob(t *testing.T, name string, mutate func(*model.Job)) model.Job {
	t.Helper()
	job := model.Job{
		Name:           name,
		TargetType:     model.TargetLocal,
		TargetConfig:   fmt.Sprintf(`{"path":%q}`, f.destRoot),
		ConflictPolicy: model.PolicyRename,
		Active:         true,
	}
	require.NoError(t, job.SetSources([]string{f.srcDir}))
	if mutate != nil {
		mutate(&job)
	}
	require.NoError(t, repository.NewJobRepository(f.gdb).Create(&job))
	return job
}

func (f *fixture) addFiles(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		path := filepath.Join(f.srcDir, fmt.Sprintf("file%d.txt", i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("content %d", i)), 0o644))
	}
}

func (f *fixture) execution(t *testing.T, id uint) model.Execution {
	t.Helper()
	exec, err := f.execs.GetByID(id)
	require.NoError(t, err)
	return exec
}

func (f *fixture) destFiles(t *testing.T, jobName string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.destRoot, jobName))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_CompletesAndLedgersEveryFile(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 3)
	job := f.addJob(t, "photos", nil)

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	snap := f.eng.Snapshot()
	assert.False(t, snap.Running)
	require.NotZero(t, snap.ExecutionID)

	exec := f.execution(t, snap.ExecutionID)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Equal(t, 3, exec.TotalFiles)
	assert.Equal(t, 3, exec.ProcessedFiles)
	assert.Zero(t, exec.FailedFiles)
	assert.Positive(t, exec.TransferredBytes)
	require.NotNil(t, exec.CompletedAt)

	rows, err := f.transfers.GetByExecution(exec.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, model.TransferCompleted, row.Status)
		assert.NotEmpty(t, row.Checksum)
		assert.FileExists(t, row.TargetPath)
	}

	assert.Len(t, f.destFiles(t, "photos"), 3)
}

func TestRun_IncludeFilterNarrowsTheSet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.srcDir, "a.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.srcDir, "b.tmp"), []byte("drop"), 0o644))
	job := f.addJob(t, "docs", func(j *model.Job) {
		j.IncludePatterns = "*.txt"
	})

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Equal(t, 1, exec.TotalFiles)
	assert.Equal(t, 1, exec.ProcessedFiles)

	assert.Equal(t, []string{"a.txt"}, f.destFiles(t, "docs"))
}

func TestStart_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 5)
	job := f.addJob(t, "photos", nil)

	require.NoError(t, f.eng.Start(job.ID))
	assert.ErrorIs(t, f.eng.Start(job.ID), engine.ErrBusy)
	f.eng.Wait()
}

func TestStart_RejectsUnknownAndInactiveJobs(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(t, "photos", nil)
	require.NoError(t, repository.NewJobRepository(f.gdb).Deactivate(job.ID))

	assert.Error(t, f.eng.Start(9999))
	assert.Error(t, f.eng.Start(job.ID))
}

func TestControls_RejectedWhenIdle(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.eng.Pause(), engine.ErrNotRunning)
	assert.ErrorIs(t, f.eng.Resume(), engine.ErrNotRunning)
	assert.ErrorIs(t, f.eng.Stop(), engine.ErrNotRunning)
}

func TestRun_EmptySourceCompletesCleanly(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(t, "photos", nil)

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Zero(t, exec.TotalFiles)
}

func TestPauseResume_KeepsTotalsAndNeverDuplicates(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 5)
	job := f.addJob(t, "photos", nil)

	var once sync.Once
	f.eng.OnProgress(func(processed, total int, label string) {
		if processed >= 2 && strings.HasPrefix(label, "Copying") {
			once.Do(func() { _ = f.eng.Pause() })
		}
	})

	require.NoError(t, f.eng.Start(job.ID))

	require.Eventually(t, func() bool {
		return f.eng.Snapshot().Paused
	}, waitFor, 10*time.Millisecond)

	execID := f.eng.Snapshot().ExecutionID
	require.Eventually(t, func() bool {
		exec, err := f.execs.GetByID(execID)
		return err == nil && exec.Status == model.ExecutionPaused
	}, waitFor, 10*time.Millisecond)

	paused := f.execution(t, execID)
	require.NotNil(t, paused.PausedAt)
	assert.Equal(t, 5, paused.TotalFiles)
	assert.Less(t, paused.ProcessedFiles, 5)

	require.NoError(t, f.eng.Resume())
	f.eng.Wait()

	exec := f.execution(t, execID)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Equal(t, 5, exec.TotalFiles)
	assert.Equal(t, 5, exec.ProcessedFiles)
	require.NotNil(t, exec.ResumedAt)

	rows, err := f.transfers.GetByExecution(execID)
	require.NoError(t, err)
	seen := make(map[string]int)
	for _, row := range rows {
		require.Equal(t, model.TransferCompleted, row.Status)
		seen[row.SourcePath]++
	}
	assert.Len(t, seen, 5)
	for src, count := range seen {
		assert.Equal(t, 1, count, "duplicate transfer for %s", src)
	}

	// Resume never re-copies, so nothing got a _1 suffix.
	for _, name := range f.destFiles(t, "photos") {
		assert.NotContains(t, name, "_1")
	}
}

func TestStop_CancelsAtNextCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 6)
	job := f.addJob(t, "photos", nil)

	var once sync.Once
	f.eng.OnProgress(func(processed, total int, label string) {
		if processed >= 1 && strings.HasPrefix(label, "Copying") {
			once.Do(func() { _ = f.eng.Stop() })
		}
	})

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionCancelled, exec.Status)
	assert.Equal(t, "cancelled by user", exec.ErrorMessage)
	require.NotNil(t, exec.CompletedAt)
}

func TestStop_OverridesPause(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 6)
	job := f.addJob(t, "photos", nil)

	var once sync.Once
	f.eng.OnProgress(func(processed, total int, label string) {
		if processed >= 1 && strings.HasPrefix(label, "Copying") {
			once.Do(func() { _ = f.eng.Pause() })
		}
	})

	require.NoError(t, f.eng.Start(job.ID))
	require.Eventually(t, func() bool {
		return f.eng.Snapshot().Paused
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, f.eng.Stop())
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionCancelled, exec.Status)
}

func TestShutdown_ParksRunAndNewEngineResumesIt(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 8)
	job := f.addJob(t, "photos", nil)

	require.NoError(t, f.eng.Start(job.ID))
	require.Eventually(t, func() bool {
		return f.eng.Snapshot().Processed >= 1
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, f.eng.Shutdown(context.Background()))
	assert.False(t, f.eng.Running())

	execID := f.eng.Snapshot().ExecutionID
	parked := f.execution(t, execID)
	assert.Equal(t, model.ExecutionPaused, parked.Status)
	require.NotNil(t, parked.PausedAt)

	// A fresh engine on the same database picks the parked execution back up.
	restarted, err := engine.New(f.gdb, &config.Config{ChecksumAlgorithm: "sha256", RenameRetryCap: 9999})
	require.NoError(t, err)
	require.NoError(t, restarted.Start(job.ID))
	restarted.Wait()

	exec := f.execution(t, execID)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Equal(t, 8, exec.TotalFiles)
	require.NotNil(t, exec.ResumedAt)

	var execCount int64
	require.NoError(t, f.gdb.Model(&model.Execution{}).
		Where("job_id = ?", job.ID).Count(&execCount).Error)
	assert.Equal(t, int64(1), execCount)

	assert.Len(t, f.destFiles(t, "photos"), 8)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 3)
	job := f.addJob(t, "photos", nil)

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()
	firstID := f.eng.Snapshot().ExecutionID

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()
	secondID := f.eng.Snapshot().ExecutionID

	require.NotEqual(t, firstID, secondID)

	second := f.execution(t, secondID)
	assert.Equal(t, model.ExecutionCompleted, second.Status)

	rows, err := f.transfers.GetByExecution(secondID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Unchanged files are recognized by digest, so no renamed copies appear.
	names := f.destFiles(t, "photos")
	assert.Len(t, names, 3)
	for _, name := range names {
		assert.NotContains(t, name, "_1")
	}
}

func TestRun_SkipPolicyCountsAsSuccess(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.srcDir, "a.txt"), []byte("new"), 0o644))
	existing := filepath.Join(f.destRoot, "docs", "a.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	job := f.addJob(t, "docs", func(j *model.Job) {
		j.ConflictPolicy = model.PolicySkip
	})

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Zero(t, exec.FailedFiles)

	rows, err := f.transfers.GetByExecution(exec.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.TransferSkipped, rows[0].Status)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

// driftHasher returns a fresh digest on every call, so the connector's
// verification of the copy against its source always fails.
type driftHasher struct {
	mu    sync.Mutex
	calls int
}

func (h *driftHasher) Sum(string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return fmt.Sprintf("digest-%d", h.calls), nil
}

func (h *driftHasher) Algorithm() string { return "drift" }

func TestRun_VerificationFailureIsRecordedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 2)
	job := f.addJob(t, "photos", nil)

	f.eng.SetHasher(&driftHasher{})

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionCompletedWithErrors, exec.Status)
	assert.Equal(t, 2, exec.ProcessedFiles)
	assert.Equal(t, 2, exec.FailedFiles)

	rows, err := f.transfers.GetByExecution(exec.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, model.TransferFailed, row.Status)
		assert.Contains(t, row.ErrorMessage, "checksum mismatch")
	}

	// Nothing verified, nothing lands at the destination.
	assert.Empty(t, f.destFiles(t, "photos"))
}

func TestRun_GDriveTargetFailsFast(t *testing.T) {
	f := newFixture(t)
	f.addFiles(t, 1)
	job := f.addJob(t, "cloud", func(j *model.Job) {
		j.TargetType = model.TargetGDrive
		j.TargetConfig = `{"folder":"backups"}`
	})

	require.NoError(t, f.eng.Start(job.ID))
	f.eng.Wait()

	exec := f.execution(t, f.eng.Snapshot().ExecutionID)
	assert.Equal(t, model.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "not implemented")
}
