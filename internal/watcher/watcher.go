// Package watcher monitors an inbox directory for new and changed files.
package watcher

import (
	"fmt"
	"log/slog"
)

// Backend selection values.
const (
	BackendAuto   = "auto"
	BackendNotify = "notify"
	BackendPoll   = "poll"
)

// New creates an event source for the requested backend.
//   - "notify": OS-level notifications via fsnotify. Preferred where available.
//   - "poll": periodic directory scans. Works on network mounts and other
//     filesystems where notifications are unreliable.
//   - "auto": notify, falling back to poll if the fsnotify watcher cannot
//     be created.
func New(backend string, logger *slog.Logger, opts Options) (Source, error) {
	opts.setDefaults()

	switch backend {
	case BackendNotify:
		return newNotifySource(logger, opts)
	case BackendPoll:
		return newPollSource(logger, opts), nil
	case BackendAuto, "":
		src, err := newNotifySource(logger, opts)
		if err != nil {
			logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
			return newPollSource(logger, opts), nil
		}
		logger.Info("using fsnotify backend")
		return src, nil
	default:
		return nil, fmt.Errorf("unknown watch backend %q", backend)
	}
}
