// Package typing converts raw keystroke activity into start/stop typing
// intents with a trailing quiet-period timeout.
package typing

import (
	"strings"
	"sync"
	"time"
)

// DefaultQuietPeriod is how long input must stay idle before a stop
// intent is emitted.
const DefaultQuietPeriod = time.Second

// Debouncer belongs to a single active input session. Start fires at most
// once per continuous burst of non-empty input; Stop fires exactly once,
// either after the quiet period or immediately on submit.
type Debouncer struct {
	mu     sync.Mutex
	quiet  time.Duration
	timer  *time.Timer
	active bool
	closed bool
	start  func()
	stop   func()
}

func NewDebouncer(quiet time.Duration, start, stop func()) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{
		quiet: quiet,
		start: start,
		stop:  stop,
	}
}

// Input records one content change. Non-empty content with no outstanding
// start intent emits start; every change resets the quiet-period timer.
func (d *Debouncer) Input(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if strings.TrimSpace(text) != "" && !d.active {
		d.active = true
		d.start()
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.expire)
}

// Submit flushes an outstanding start intent immediately, canceling the
// pending timer so the stop cannot fire twice.
func (d *Debouncer) Submit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.active {
		return
	}
	d.cancelTimerLocked()
	d.active = false
	d.stop()
}

// Close tears the session down: the timer is canceled and, if a start
// intent is still outstanding, a final stop is emitted so the server is
// not left believing the user is typing.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.cancelTimerLocked()
	if d.active {
		d.active = false
		d.stop()
	}
}

func (d *Debouncer) expire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A submit or close may have won the race after the timer fired.
	if d.closed || !d.active {
		return
	}
	d.timer = nil
	d.active = false
	d.stop()
}

func (d *Debouncer) cancelTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
