package downloader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval bounds how long a paused worker takes to notice a
// state change it was not woken for.
const DefaultPollInterval = 100 * time.Millisecond

// Control is the run/pause/cancel signal shared by the crawl and every
// worker of one session. paused is only meaningful while running.
type Control struct {
	running atomic.Bool
	paused  atomic.Bool

	poll time.Duration
	// cancel aborts the session context, unblocking in-flight reads.
	cancel context.CancelFunc

	mu   sync.Mutex
	wake chan struct{}
}

func newControl(poll time.Duration) *Control {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	c := &Control{poll: poll, wake: make(chan struct{})}
	c.running.Store(true)
	return c
}

func (c *Control) Running() bool { return c.running.Load() }
func (c *Control) Paused() bool  { return c.paused.Load() && c.running.Load() }

// Pause has no effect once the session is no longer running.
func (c *Control) Pause() {
	if c.running.Load() {
		c.paused.Store(true)
	}
}

func (c *Control) Resume() {
	c.paused.Store(false)
	c.broadcast()
}

// Stop ends the session. Workers blocked on the network fail at once;
// the rest observe it at their next poll point.
func (c *Control) Stop() {
	c.running.Store(false)
	c.paused.Store(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.broadcast()
}

// Proceed blocks while the session is paused and reports whether it is
// still running. A cancelled ctx counts as stopped.
func (c *Control) Proceed(ctx context.Context) bool {
	for c.paused.Load() && c.running.Load() {
		c.mu.Lock()
		wake := c.wake
		c.mu.Unlock()

		timer := time.NewTimer(c.poll)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()

		if ctx.Err() != nil {
			return false
		}
	}
	return c.running.Load() && ctx.Err() == nil
}

func (c *Control) broadcast() {
	c.mu.Lock()
	close(c.wake)
	c.wake = make(chan struct{})
	c.mu.Unlock()
}
