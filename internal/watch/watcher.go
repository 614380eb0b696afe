package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"packrat/internal/engine"
	"packrat/internal/logger"
	"packrat/internal/model"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes a job's source trees and triggers a run when they change.
// Changes are debounced so an editor save burst causes one run, not ten. A
// trigger that lands while a run is already active is dropped, not queued.
type Watcher struct {
	eng      *engine.Engine
	job      model.Job
	fw       *fsnotify.Watcher
	debounce time.Duration
	doneCh   chan struct{}
}

func New(eng *engine.Engine, job model.Job, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		eng:      eng,
		job:      job,
		fw:       fw,
		debounce: debounce,
		doneCh:   make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	sources, err := w.job.SourceList()
	if err != nil {
		return err
	}

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			logger.Log.Warn("skipping unavailable source",
				zap.String("path", source),
				zap.Error(err))
			continue
		}

		if !info.IsDir() {
			if err := w.fw.Add(filepath.Dir(source)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", source, err)
			}
			continue
		}

		if err := w.addRecursive(source); err != nil {
			return err
		}
	}

	go w.run()

	logger.Log.Info("watch started",
		zap.Uint("job", w.job.ID),
		zap.String("name", w.job.Name))
	return nil
}

func (w *Watcher) Stop() {
	close(w.doneCh)
	_ = w.fw.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}

		return nil
	})
}

func (w *Watcher) run() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("watch stopping")
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			if fsEvent.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					if err := w.fw.Add(fsEvent.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", fsEvent.Name),
							zap.Error(err))
					}
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			w.trigger()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) trigger() {
	err := w.eng.Start(w.job.ID)
	switch {
	case err == nil:
		logger.Log.Info("change detected, backup started",
			zap.Uint("job", w.job.ID))
	case errors.Is(err, engine.ErrBusy):
		logger.Log.Info("change detected but a backup is already running, skipping",
			zap.Uint("job", w.job.ID))
	default:
		logger.Log.Warn("failed to start backup",
			zap.Uint("job", w.job.ID),
			zap.Error(err))
	}
}
