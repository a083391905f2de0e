// Package pipeline implements the watch-and-convert pipeline: it debounces
// filesystem events, waits for files to stabilize, dispatches conversion,
// retries transient failures with backoff, and drains cleanly on shutdown.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fitconvapp/fitconv-server/internal/errors"
	"github.com/fitconvapp/fitconv-server/internal/watcher"
)

// State is the controller lifecycle phase.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Per-path processing phase, tracked for health reporting.
type phase int32

const (
	phaseProbing phase = iota
	phaseInFlight
	phaseRetryWait
)

// pathState is the per-path activity token. Its presence in the path map is
// what enforces the one-attempt-per-path invariant; the phase only feeds
// Stats.
type pathState struct {
	phase atomic.Int32
}

// Options configures the controller.
type Options struct {
	Inbox      string
	Outbox     string
	Quarantine string
	Processed  string

	// Extensions lists the source file extensions to process
	// (lowercase, with dot). Defaults to [".fit"].
	Extensions []string

	DebounceWindow time.Duration
}

// Stats reports current pipeline activity for health endpoints.
type Stats struct {
	State        string `json:"state"`
	Settling     int    `json:"settling"`
	InFlight     int    `json:"in_flight"`
	RetryWaiting int    `json:"retry_waiting"`
}

// Controller owns the event source and wires debouncer, prober, dispatcher
// and retry policy together. Lifecycle: Starting -> Running -> Draining ->
// Stopped.
type Controller struct {
	opts       Options
	source     watcher.Source
	prober     *Prober
	dispatcher *Dispatcher
	policy     Policy
	logger     *slog.Logger

	debouncer *Debouncer
	paths     *SyncMap[string, *pathState]

	state     atomic.Int32
	runCtx    context.Context
	cancel    context.CancelFunc
	drain     chan struct{}
	drainOnce sync.Once
	loopDone  chan struct{}
	wg        sync.WaitGroup
}

// NewController creates a pipeline controller. Start must be called before
// events flow.
func NewController(
	source watcher.Source,
	prober *Prober,
	dispatcher *Dispatcher,
	policy Policy,
	opts Options,
	logger *slog.Logger,
) *Controller {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".fit"}
	}

	c := &Controller{
		opts:       opts,
		source:     source,
		prober:     prober,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
		paths:      NewSyncMap[string, *pathState](),
		drain:      make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	c.debouncer = NewDebouncer(opts.DebounceWindow, c.onArrived)
	return c
}

// Start validates the directory layout, primes the event source, reconciles
// files already sitting in the inbox, and enters Running. It does not block;
// event processing happens on background goroutines.
func (c *Controller) Start(ctx context.Context) error {
	c.logger.Info("pipeline starting",
		"inbox", c.opts.Inbox,
		"outbox", c.opts.Outbox,
	)

	for _, dir := range []string{c.opts.Inbox, c.opts.Outbox, c.opts.Quarantine, c.opts.Processed} {
		if err := ensureWritableDir(dir); err != nil {
			return fmt.Errorf("directory check failed: %w", err)
		}
	}

	c.runCtx, c.cancel = context.WithCancel(ctx)

	if err := c.source.Watch(c.opts.Inbox); err != nil {
		c.cancel()
		return fmt.Errorf("watch inbox: %w", err)
	}

	go func() {
		if err := c.source.Start(c.runCtx); err != nil {
			c.logger.Error("event source error", "error", err)
		}
	}()
	go c.eventLoop()

	reconciled := c.reconcile()

	c.state.Store(int32(StateRunning))
	c.logger.Info("pipeline running", "reconciled", reconciled)
	return nil
}

// Stop drains the pipeline: intake halts, pending debounce timers and
// not-yet-eligible retries are cancelled, and in-flight conversions get up
// to grace to finish. Returns true if the drain completed cleanly.
func (c *Controller) Stop(grace time.Duration) bool {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		// Never reached Running; nothing is in flight.
		c.state.Store(int32(StateStopped))
		return true
	}

	c.logger.Info("pipeline draining", "grace", grace)

	c.drainOnce.Do(func() { close(c.drain) })
	c.debouncer.Stop()
	if err := c.source.Stop(); err != nil {
		c.logger.Warn("event source stop", "error", err)
	}
	c.cancel()
	<-c.loopDone

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	clean := true
	select {
	case <-done:
	case <-time.After(grace):
		clean = false
		c.logger.Warn("grace period expired with work in flight")
	}

	c.state.Store(int32(StateStopped))
	c.logger.Info("pipeline stopped", "clean", clean)
	return clean
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Stats returns current activity counts for health reporting.
func (c *Controller) Stats() Stats {
	s := Stats{
		State:    c.State().String(),
		Settling: c.debouncer.Len(),
	}
	c.paths.Range(func(_ string, st *pathState) bool {
		switch phase(st.phase.Load()) {
		case phaseProbing:
			s.Settling++
		case phaseInFlight:
			s.InFlight++
		case phaseRetryWait:
			s.RetryWaiting++
		}
		return true
	})
	return s
}

// eventLoop feeds raw watcher events into the debouncer until shutdown.
func (c *Controller) eventLoop() {
	defer close(c.loopDone)

	for {
		select {
		case <-c.runCtx.Done():
			return
		case ev, ok := <-c.source.Events():
			if !ok {
				return
			}
			c.handleEvent(ev)
		case err, ok := <-c.source.Errors():
			if !ok {
				return
			}
			c.logger.Warn("watch error", "error", err)
		}
	}
}

// handleEvent routes one raw event.
func (c *Controller) handleEvent(ev watcher.Event) {
	if s := c.State(); s == StateDraining || s == StateStopped {
		return
	}
	if !c.eligible(ev.Path) {
		return
	}

	switch ev.Type {
	case watcher.EventRemoved:
		c.debouncer.Cancel(ev.Path)
	default:
		c.logger.Debug("observed event", "type", ev.Type.String(), "path", ev.Path)
		c.debouncer.Observe(ev.Path)
	}
}

// reconcile feeds files already present in the inbox into the pipeline so
// drops that happened while the watcher was down are not silently ignored.
func (c *Controller) reconcile() int {
	entries, err := os.ReadDir(c.opts.Inbox)
	if err != nil {
		c.logger.Warn("startup reconciliation failed", "error", err)
		return 0
	}

	n := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(c.opts.Inbox, entry.Name())
		if !c.eligible(path) {
			continue
		}
		c.debouncer.Observe(path)
		n++
	}
	return n
}

// onArrived runs when a path's debounce window closes. The LoadOrStore on
// the token map is what guarantees a path never has two concurrent dispatch
// lifecycles.
func (c *Controller) onArrived(path string) {
	st := &pathState{}
	st.phase.Store(int32(phaseProbing))
	if _, loaded := c.paths.LoadOrStore(path, st); loaded {
		c.logger.Debug("path already active, skipping arrival", "path", path)
		return
	}

	c.logger.Info("file arrived", "path", path)
	c.wg.Add(1)
	go c.process(path, st)
}

// process runs one path's full lifecycle: stabilization, then sequential
// dispatch attempts with backoff, to exactly one terminal outcome.
func (c *Controller) process(path string, st *pathState) {
	defer c.wg.Done()
	defer c.paths.Delete(path)

	if err := c.prober.WaitStable(c.runCtx, path); err != nil {
		switch {
		case c.runCtx.Err() != nil:
			// Shutdown cancelled the probe wait.
		case errors.Is(err, fs.ErrNotExist):
			c.logger.Info("file removed before dispatch", "path", path)
		case errors.Is(err, errors.ErrNeverSettled):
			c.logger.Error("stabilization timeout",
				"path", path,
				"reason", "file never settled",
				"max_wait", c.prober.maxWait,
			)
			if qErr := c.dispatcher.Quarantine(path); qErr != nil {
				c.logger.Error("failed to quarantine file", "path", path, "error", qErr)
			}
		default:
			c.logger.Warn("stabilization probe failed", "path", path, "error", err)
		}
		return
	}

	// A conversion already underway is allowed to finish during drain, so
	// its context must survive the run context's cancellation.
	convCtx := context.WithoutCancel(c.runCtx)

	for attempt := 1; ; attempt++ {
		st.phase.Store(int32(phaseInFlight))
		att := c.dispatcher.Dispatch(convCtx, path, attempt)

		switch att.Outcome {
		case OutcomeSuccess, OutcomePermanent:
			return
		case OutcomeTransient:
			delay, ok := c.policy.ShouldRetry(attempt)
			if !ok {
				c.logger.Error("retry attempts exhausted, failing permanently",
					"path", path,
					"attempts", attempt,
					"error", att.Err,
				)
				if qErr := c.dispatcher.Quarantine(path); qErr != nil {
					c.logger.Error("failed to quarantine file", "path", path, "error", qErr)
				}
				return
			}

			st.phase.Store(int32(phaseRetryWait))
			retry := RetryState{
				Path:           path,
				Attempt:        attempt,
				NextEligibleAt: time.Now().Add(delay),
			}
			c.logger.Info("retry scheduled",
				"path", path,
				"attempt", attempt,
				"delay", delay,
				"next_eligible_at", retry.NextEligibleAt,
			)

			select {
			case <-time.After(delay):
			case <-c.drain:
				c.logger.Debug("pending retry abandoned", "path", path)
				return
			}
		}
	}
}

// eligible filters events down to convertible source files.
func (c *Controller) eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range c.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// ensureWritableDir creates dir if needed and verifies it is writable by
// round-tripping a temp file. Startup refuses to proceed otherwise.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".fitconv-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
