package persistence

import (
	"sync"
	"time"

	"github.com/ritzau/bluecity/pkg/model"
)

// Writer saves the latest scheduled state once mutations go quiet
type Writer struct {
	adapter   *Adapter
	debouncer *Debouncer

	mu     sync.Mutex
	latest *model.PersistedState
}

// NewWriter creates a debounced writer over adapter
func NewWriter(adapter *Adapter, quietPeriod time.Duration) *Writer {
	w := &Writer{adapter: adapter}
	w.debouncer = NewDebouncer(quietPeriod, w.write)
	return w
}

// Adapter returns the underlying adapter
func (w *Writer) Adapter() *Adapter {
	return w.adapter
}

// Schedule replaces the pending state and restarts the quiet period.
// The state must already be detached from live data.
func (w *Writer) Schedule(state model.PersistedState) {
	w.mu.Lock()
	w.latest = &state
	w.mu.Unlock()
	w.debouncer.Trigger()
}

// Flush writes the pending state immediately
func (w *Writer) Flush() {
	w.debouncer.Flush()
}

// Discard drops the pending state without writing it
func (w *Writer) Discard() {
	w.mu.Lock()
	w.latest = nil
	w.mu.Unlock()
}

// Close flushes and stops the writer
func (w *Writer) Close() {
	w.debouncer.Stop()
}

func (w *Writer) write() {
	w.mu.Lock()
	state := w.latest
	w.latest = nil
	w.mu.Unlock()

	if state != nil {
		w.adapter.Save(*state)
	}
}
