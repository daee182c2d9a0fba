package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ErrStreamTimeout is returned by a file body that received no data for
// longer than Options.ReadTimeout.
var ErrStreamTimeout = errors.New("stream stalled")

// idleBody cancels its request when a Read waits longer than timeout. Time
// spent by the caller between reads, such as a pause, is not counted.
type idleBody struct {
	body    io.ReadCloser
	url     string
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

func newIdleBody(body io.ReadCloser, url string, timeout time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{body: body, url: url, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, func() {
		b.expired.Store(true)
		cancel()
	})
	b.timer.Stop()
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	if b.expired.Load() {
		return 0, b.timeoutErr()
	}

	b.timer.Reset(b.timeout)
	n, err := b.body.Read(p)
	b.timer.Stop()

	if err != nil && err != io.EOF && b.expired.Load() {
		return n, b.timeoutErr()
	}
	return n, err
}

func (b *idleBody) timeoutErr() error {
	return fmt.Errorf("no data from %s for %s: %w", b.url, b.timeout, ErrStreamTimeout)
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	b.cancel()
	return b.body.Close()
}
