package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// notifySource implements Source using fsnotify
type notifySource struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// newNotifySource creates a notification-driven source using fsnotify
func newNotifySource(logger *slog.Logger, opts Options) (*notifySource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &notifySource{
		logger:  logger,
		opts:    opts,
		watcher: watcher,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a directory to be monitored
func (s *notifySource) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path is not a directory: %s", path)
	}

	if err := s.watcher.Add(path); err != nil {
		return fmt.Errorf("failed to add watch: %w", err)
	}

	s.logger.Debug("added watch", "path", path)
	return nil
}

// Start begins watching for events
func (s *notifySource) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.processEvents(ctx)

	<-ctx.Done()
	return nil
}

// processEvents translates fsnotify events into watcher events
func (s *notifySource) processEvents(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFsnotifyEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

// handleFsnotifyEvent maps an fsnotify op onto an Event
func (s *notifySource) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	if s.opts.shouldIgnore(path) {
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		s.emitEvent(Event{
			Type:       EventRemoved,
			Path:       path,
			ObservedAt: time.Now(),
		})
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Gone already; the remove event will follow.
		return
	}
	if info.IsDir() {
		return
	}

	typ := EventModified
	if event.Op&fsnotify.Create != 0 {
		// A rename into the watched directory surfaces as Create; the
		// distinction only matters for logging.
		typ = EventCreated
	}

	s.emitEvent(Event{
		Type:       typ,
		Path:       path,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		ObservedAt: time.Now(),
	})
}

// emitEvent sends an event to the events channel
func (s *notifySource) emitEvent(event Event) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

// Events returns the events channel
func (s *notifySource) Events() <-chan Event {
	return s.events
}

// Errors returns the errors channel
func (s *notifySource) Errors() <-chan error {
	return s.errors
}

// Stop stops the source
func (s *notifySource) Stop() error {
	s.once.Do(func() {
		close(s.done)

		s.watcher.Close()

		// Wait for goroutines
		s.wg.Wait()

		close(s.events)
		close(s.errors)
	})
	return nil
}
