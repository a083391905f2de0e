package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pollSource implements Source by scanning watched directories on an
// interval and diffing against the previous snapshot. It is the fallback
// for filesystems where notifications are unavailable (network mounts,
// some containers).
type pollSource struct {
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex
	dirs  []string
	known map[string]fileState // path -> last observed state

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// fileState is the snapshot of one file between scans
type fileState struct {
	size    int64
	modTime time.Time
}

// newPollSource creates a poll-driven source
func newPollSource(logger *slog.Logger, opts Options) *pollSource {
	return &pollSource{
		logger: logger,
		opts:   opts,
		known:  make(map[string]fileState),
		events: make(chan Event, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}
}

// Watch adds a directory to be scanned
func (s *pollSource) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}

	s.mu.Lock()
	s.dirs = append(s.dirs, path)
	s.mu.Unlock()

	// Prime the snapshot so pre-existing files do not surface as created
	// events on the first tick. Startup reconciliation handles those.
	s.scan(false)

	s.logger.Debug("added poll watch", "path", path)
	return nil
}

// Start begins scanning on the configured interval
func (s *pollSource) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.scan(true)
			}
		}
	}()

	<-ctx.Done()
	return nil
}

// scan walks every watched directory and emits events for the diff.
// When emit is false the snapshot is updated silently.
func (s *pollSource) scan(emit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.known))
	now := time.Now()

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if emit {
				select {
				case s.errors <- err:
				case <-s.done:
				}
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if s.opts.shouldIgnore(path) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}

			seen[path] = struct{}{}
			current := fileState{size: info.Size(), modTime: info.ModTime()}

			prev, existed := s.known[path]
			s.known[path] = current

			if !emit {
				continue
			}

			if !existed {
				s.emitEvent(Event{
					Type:       EventCreated,
					Path:       path,
					Size:       current.size,
					ModTime:    current.modTime,
					ObservedAt: now,
				})
			} else if prev != current {
				s.emitEvent(Event{
					Type:       EventModified,
					Path:       path,
					Size:       current.size,
					ModTime:    current.modTime,
					ObservedAt: now,
				})
			}
		}
	}

	// Anything in the snapshot we did not see was removed.
	for path := range s.known {
		if _, ok := seen[path]; ok {
			continue
		}
		delete(s.known, path)
		if emit {
			s.emitEvent(Event{
				Type:       EventRemoved,
				Path:       path,
				ObservedAt: now,
			})
		}
	}
}

// emitEvent sends an event to the events channel
func (s *pollSource) emitEvent(event Event) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

// Events returns the events channel
func (s *pollSource) Events() <-chan Event {
	return s.events
}

// Errors returns the errors channel
func (s *pollSource) Errors() <-chan error {
	return s.errors
}

// Stop stops the source
func (s *pollSource) Stop() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		close(s.events)
		close(s.errors)
	})
	return nil
}
