package pipeline

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fitconvapp/fitconv-server/internal/errors"
)

// Prober determines whether a file sitting in the inbox has finished being
// written. A file is stable when its size is unchanged and non-zero across
// two consecutive samples and it can be opened for read. Avoids reading a
// half-written file uploaded over a slow link or still being copied.
type Prober struct {
	interval  time.Duration
	maxWait   time.Duration
	maxRounds int // 0 = bounded by maxWait only
	logger    *slog.Logger
}

// NewProber creates a stabilization prober. maxRounds can cap the number of
// samples below what maxWait allows; zero leaves maxWait as the only bound.
func NewProber(interval, maxWait time.Duration, maxRounds int, logger *slog.Logger) *Prober {
	return &Prober{
		interval:  interval,
		maxWait:   maxWait,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// WaitStable blocks until path stabilizes, the wait budget runs out, or ctx
// is cancelled. Returns errors.ErrNeverSettled when the file is still
// changing at the deadline. A missing file propagates the stat error so the
// caller can tell removal apart from instability.
func (p *Prober) WaitStable(ctx context.Context, path string) error {
	deadline := time.Now().Add(p.maxWait)
	lastSize := int64(-1)

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		size := info.Size()
		if size == lastSize && size > 0 && p.openable(path) {
			p.logger.Debug("file stabilized", "path", path, "size", size, "rounds", round)
			return nil
		}
		lastSize = size

		if p.maxRounds > 0 && round >= p.maxRounds {
			return errors.NeverSettled("file never settled")
		}
		if time.Now().Add(p.interval).After(deadline) {
			return errors.NeverSettled("file never settled")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// openable reports whether the file can be opened for read. A sharing
// violation or permission race here means the writer is not done yet.
func (p *Prober) openable(path string) bool {
	f, err := os.Open(path) //#nosec G304 -- path comes from the watched inbox
	if err != nil {
		return false
	}
	f.Close()
	return true
}
