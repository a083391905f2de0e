package watcher

import "time"

// EventType represents the type of file system event
type EventType int

const (
	// EventCreated is emitted when a new file appears in a watched
	// directory. Renames into the directory surface as creates too.
	EventCreated EventType = iota
	// EventModified is emitted when an existing file changes
	EventModified
	// EventRemoved is emitted when a file is deleted or renamed away
	EventRemoved
)

// String returns the string representation of the event type
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents a raw file system event. Events are not debounced here;
// the pipeline's debouncer collapses bursts into a single arrival.
type Event struct {
	// Type is the kind of event (created, modified, removed)
	Type EventType

	// Path is the current file path
	Path string

	// Size is the file size in bytes at observation time (0 for removals)
	Size int64

	// ModTime is the file's last modification time (zero for removals)
	ModTime time.Time

	// ObservedAt is when the event was seen by the backend
	ObservedAt time.Time
}
