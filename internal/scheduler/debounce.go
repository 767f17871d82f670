package scheduler

import (
	"sync"
	"time"
)

// DefaultQuietInterval is how long the editor has to be idle before a
// decoration refresh runs
const DefaultQuietInterval = 20 * time.Millisecond

// Debouncer holds at most one pending callback. Every Trigger replaces the
// pending callback and restarts the quiet interval.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	pending  func()
	seq      uint64
	closed   bool
}

// New creates a debouncer. A non-positive interval uses DefaultQuietInterval.
func New(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultQuietInterval
	}
	return &Debouncer{interval: interval}
}

// Interval returns the quiet interval
func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// Trigger cancels the outstanding callback and schedules fn
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.pending = fn
	d.timer = time.AfterFunc(d.interval, func() {
		d.fire(seq)
	})
}

// Flush runs the pending callback now instead of waiting for the interval
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.closed || d.pending == nil {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	fn()
}

// Pending reports whether a callback is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Close drops the pending callback. No callback starts after Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.pending = nil
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	// a newer Trigger, Flush or Close superseded this timer
	if d.closed || seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}
