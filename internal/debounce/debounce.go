// Package debounce delays a callback until input has been quiet for a fixed
// interval.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period applied to search input.
const DefaultDelay = 250 * time.Millisecond

// Debouncer runs fn with the most recent text once no Trigger call has been
// made for delay. At most one timer is pending at any time.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	clock Clock
	fn    func(string)
	timer Timer
	gen   uint64
}

// New returns a Debouncer. A non-positive delay uses DefaultDelay and a nil
// clock uses SystemClock.
func New(delay time.Duration, clock Clock, fn func(string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Debouncer{delay: delay, clock: clock, fn: fn}
}

// Trigger replaces any pending call with one for text.
func (d *Debouncer) Trigger(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen, text) })
}

// Cancel drops the pending call. fn is not invoked for any earlier Trigger
// after Cancel returns, even if its timer already expired.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) fire(gen uint64, text string) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	d.fn(text)
}
