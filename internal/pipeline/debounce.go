package pipeline

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of filesystem events for the same path into a
// single arrival signal. Each observed event resets the path's inactivity
// timer; the arrival callback fires once no further events occur within the
// quiet window. A path that settles and later sees new activity produces a
// second arrival.
type Debouncer struct {
	window  time.Duration
	arrived func(path string)

	mu      sync.Mutex
	pending map[string]pendingTimer
	gen     uint64
	stopped bool
}

// pendingTimer tags a path's active timer with the generation that armed it,
// so a stale callback racing a fresh Observe can be told apart from the
// timer currently owning the window.
type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewDebouncer creates a Debouncer with the given quiet window. The arrived
// callback runs on a timer goroutine, one call per settling episode.
func NewDebouncer(window time.Duration, arrived func(path string)) *Debouncer {
	return &Debouncer{
		window:  window,
		arrived: arrived,
		pending: make(map[string]pendingTimer),
	}
}

// Observe records filesystem activity for a path and resets its quiet-window
// timer. Safe for concurrent use across paths.
func (d *Debouncer) Observe(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if p, exists := d.pending[path]; exists {
		p.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.pending[path] = pendingTimer{
		timer: time.AfterFunc(d.window, func() { d.fire(path, gen) }),
		gen:   gen,
	}
}

// fire delivers the arrival for the timer generation that armed it. A
// callback whose timer was stopped too late, after it had already fired but
// before it took the lock, finds a newer generation in the map and must not
// cut that window short.
func (d *Debouncer) fire(path string, gen uint64) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	p, exists := d.pending[path]
	if !exists || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	// Callback runs outside the lock so it may call back into Observe.
	d.arrived(path)
}

// Cancel discards any pending arrival for a path.
func (d *Debouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, exists := d.pending[path]; exists {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

// Stop cancels all pending timers. No arrivals fire after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for _, p := range d.pending {
		p.timer.Stop()
	}
	clear(d.pending)
}

// Len returns the number of paths currently settling.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
