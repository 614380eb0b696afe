package engine

import (
	"sync"
	"time"
)

// pauseRecheck bounds the wait of a paused worker so a stop request is never
// missed indefinitely behind a pause.
const pauseRecheck = time.Second

type verdict int

const (
	keepGoing verdict = iota
	stopRequested
	quitRequested
)

// controls carries the pause/stop/quit flags shared between the worker and
// the callers requesting state changes. The flags are mutex-guarded; wake
// nudges a paused worker out of its bounded wait.
type controls struct {
	mu    sync.Mutex
	pause bool
	stop  bool
	quit  bool
	wake  chan struct{}
}

func newControls() *controls {
	return &controls{wake: make(chan struct{}, 1)}
}

func (c *controls) nudge() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *controls) requestPause() {
	c.mu.Lock()
	c.pause = true
	c.mu.Unlock()
	c.nudge()
}

func (c *controls) requestResume() {
	c.mu.Lock()
	c.pause = false
	c.mu.Unlock()
	c.nudge()
}

func (c *controls) requestStop() {
	c.mu.Lock()
	c.stop = true
	c.mu.Unlock()
	c.nudge()
}

// requestQuit asks the worker to park the execution as paused and exit, used
// on host shutdown so no run is abandoned without a persisted checkpoint.
func (c *controls) requestQuit() {
	c.mu.Lock()
	c.pause = true
	c.quit = true
	c.mu.Unlock()
	c.nudge()
}

func (c *controls) interrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pause || c.stop || c.quit
}

func (c *controls) paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pause
}

// checkpoint is called between files. It returns immediately while the run
// is live; on pause it persists the checkpoint via onPause, then blocks in
// one-second waits until resumed, stopped, or asked to quit.
func (c *controls) checkpoint(onPause, onResume func()) verdict {
	c.mu.Lock()
	if c.stop {
		c.mu.Unlock()
		return stopRequested
	}
	if c.quit {
		c.mu.Unlock()
		onPause()
		return quitRequested
	}
	if !c.pause {
		c.mu.Unlock()
		return keepGoing
	}
	c.mu.Unlock()

	onPause()

	for {
		c.mu.Lock()
		if c.stop {
			c.mu.Unlock()
			return stopRequested
		}
		if c.quit {
			c.mu.Unlock()
			return quitRequested
		}
		if !c.pause {
			c.mu.Unlock()
			onResume()
			return keepGoing
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-time.After(pauseRecheck):
		}
	}
}
