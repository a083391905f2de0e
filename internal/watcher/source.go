package watcher

import "context"

// Source defines an event-source implementation. Two variants exist:
// notification-driven (fsnotify) and poll-driven (periodic directory scan).
// The pipeline is agnostic to which variant supplies events.
type Source interface {
	// Watch adds a directory to be monitored.
	Watch(path string) error

	// Start begins delivering events. This method blocks until the
	// context is cancelled or an unrecoverable error occurs.
	Start(ctx context.Context) error

	// Stop stops the source and releases all resources
	Stop() error

	// Events returns the channel for receiving file system events
	Events() <-chan Event

	// Errors returns the channel for receiving errors
	Errors() <-chan error
}
