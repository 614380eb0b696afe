package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"packrat/internal/checksum"
	"packrat/internal/config"
	"packrat/internal/logger"
	"packrat/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrBusy       = errors.New("another backup is already running")
	ErrNotRunning = errors.New("no backup is currently running")
	ErrNotPaused  = errors.New("backup is not paused")
)

type ProgressFunc func(processed, total int, label string)

type LogFunc func(message string)

// Snapshot is the engine state exposed to observers.
type Snapshot struct {
	Running     bool      `json:"running"`
	Paused      bool      `json:"paused"`
	JobID       uint      `json:"job_id,omitempty"`
	ExecutionID uint      `json:"execution_id,omitempty"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	Failed      int       `json:"failed"`
	CurrentFile string    `json:"current_file,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
}

// Engine drives one backup execution at a time on a dedicated worker
// goroutine. Construct one per process; it owns the single-active-execution
// invariant.
type Engine struct {
	cfg       *config.Config
	hasher    checksum.Hasher
	jobs      *repository.JobRepository
	execs     *repository.ExecutionRepository
	transfers *repository.TransferRepository

	progressFn ProgressFunc
	logFn      LogFunc

	mu      sync.Mutex
	running bool
	ctrl    *controls
	done    chan struct{}
	snap    Snapshot
}

func New(gdb *gorm.DB, cfg *config.Config) (*Engine, error) {
	hasher, err := checksum.New(cfg.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		hasher:    hasher,
		jobs:      repository.NewJobRepository(gdb),
		execs:     repository.NewExecutionRepository(gdb),
		transfers: repository.NewTransferRepository(gdb),
	}, nil
}

// OnProgress registers the progress sink. Callbacks arrive from the worker
// goroutine and must not block for long.
func (e *Engine) OnProgress(fn ProgressFunc) {
	e.progressFn = fn
}

func (e *Engine) OnLog(fn LogFunc) {
	e.logFn = fn
}

// SetHasher swaps the digest implementation for both planning and copy
// verification. Must be called before Start.
func (e *Engine) SetHasher(h checksum.Hasher) {
	e.hasher = h
}

// Start begins (or resumes) a run of the given job. A second start while a
// run is active is rejected synchronously, not queued.
func (e *Engine) Start(jobID uint) error {
	job, err := e.jobs.GetByID(jobID)
	if err != nil {
		return fmt.Errorf("job %d not found: %w", jobID, err)
	}
	if !job.Active {
		return fmt.Errorf("job %d is deactivated", jobID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrBusy
	}

	e.running = true
	e.ctrl = newControls()
	e.done = make(chan struct{})
	e.snap = Snapshot{Running: true, JobID: jobID, StartedAt: time.Now()}

	go e.run(job, e.ctrl, e.done)
	return nil
}

// Pause asks the worker to checkpoint and hold between files. The current
// file copy is never interrupted mid-flight.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}

	e.ctrl.requestPause()
	return nil
}

func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}
	if !e.ctrl.paused() {
		return ErrNotPaused
	}

	e.ctrl.requestResume()
	return nil
}

// Stop cancels the run. Takes effect at the next between-files checkpoint,
// including while paused.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}

	e.ctrl.requestStop()
	return nil
}

// Shutdown parks a live run as paused so process exit never abandons state
// mid-loop. It waits until the checkpoint is persisted or ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	running := e.running
	ctrl := e.ctrl
	done := e.done
	e.mu.Unlock()

	if !running {
		return nil
	}

	logger.Log.Info("shutdown requested, parking active run as paused")
	ctrl.requestQuit()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Wait blocks until the current run's worker exits. No-op when idle.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.snap
	if e.running {
		snap.Paused = e.ctrl.paused()
	}
	return snap
}

func (e *Engine) updateSnapshot(fn func(*Snapshot)) {
	e.mu.Lock()
	fn(&e.snap)
	e.mu.Unlock()
}

func (e *Engine) progress(processed, total int, label string) {
	e.updateSnapshot(func(s *Snapshot) {
		s.Processed = processed
		s.Total = total
		s.CurrentFile = label
	})

	if e.progressFn != nil {
		e.progressFn(processed, total, label)
	}
}

func (e *Engine) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Log.Info(msg)
	if e.logFn != nil {
		e.logFn(msg)
	}
}
