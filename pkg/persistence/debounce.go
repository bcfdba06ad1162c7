package persistence

import (
	"sync"
	"time"

	"github.com/ritzau/bluecity/pkg/logging"
)

// DefaultQuietPeriod is how long mutations must pause before a write happens
const DefaultQuietPeriod = 100 * time.Millisecond

// Debouncer collapses bursts of Trigger calls into one trailing call of fn.
// Each Trigger resets the quiet-period timer instead of queueing.
type Debouncer struct {
	quietPeriod time.Duration
	fn          func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	calls   int
	stopped bool
}

// NewDebouncer creates a debouncer running fn after quietPeriod of silence
func NewDebouncer(quietPeriod time.Duration, fn func()) *Debouncer {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	return &Debouncer{quietPeriod: quietPeriod, fn: fn}
}

// Trigger (re)starts the quiet period
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = true
	d.calls++
	if d.timer == nil {
		d.timer = time.AfterFunc(d.quietPeriod, d.fire)
		return
	}
	d.timer.Reset(d.quietPeriod)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	calls := d.calls
	d.calls = 0
	d.mu.Unlock()

	logging.Trace("flushing debounced calls", "count", calls)
	d.fn()
}

// Flush runs fn now if a call is pending
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Pending reports whether a trailing call is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop flushes any pending call and disables further triggers
func (d *Debouncer) Stop() {
	d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
