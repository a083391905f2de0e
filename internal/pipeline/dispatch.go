package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fitconvapp/fitconv-server/internal/converter"
	"github.com/fitconvapp/fitconv-server/internal/errors"
	"github.com/fitconvapp/fitconv-server/internal/id"
)

// Outcome classifies a conversion attempt.
type Outcome int

const (
	// OutcomeSuccess means the artifact was written and the source moved
	// out of the inbox.
	OutcomeSuccess Outcome = iota
	// OutcomeTransient means an operational fault; eligible for retry.
	OutcomeTransient
	// OutcomePermanent means the input itself is defective; never retried.
	OutcomePermanent
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Attempt records one dispatch of a path to the converter. Immutable once
// the outcome is recorded; retained only for logging.
type Attempt struct {
	ID        string
	Path      string
	Number    int
	StartedAt time.Time
	Outcome   Outcome
	Artifact  string
	Err       error
}

// Dispatcher invokes the converter on a stabilized file and classifies the
// result. It owns the post-outcome file moves: success renames the source
// into the processed directory, permanent failure into quarantine. Both are
// plain renames within one filesystem, so a half-moved file is never visible
// as new to the watch loop.
type Dispatcher struct {
	conv       converter.Converter
	processed  string
	quarantine string
	logger     *slog.Logger
}

// NewDispatcher creates a conversion dispatcher.
func NewDispatcher(conv converter.Converter, processed, quarantine string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		conv:       conv,
		processed:  processed,
		quarantine: quarantine,
		logger:     logger,
	}
}

// Dispatch runs one conversion attempt for path.
//
// Classification: errors carrying CodeConversion are permanent (the input is
// defective, retrying cannot help); everything else is transient. Permanent
// failures are quarantined here; transient failures leave the file in place
// for the next attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, number int) Attempt {
	att := Attempt{
		ID:        id.MustGenerate("att"),
		Path:      path,
		Number:    number,
		StartedAt: time.Now(),
	}

	d.logger.Info("dispatching conversion",
		"attempt_id", att.ID,
		"path", path,
		"attempt", number,
	)

	res, err := d.conv.Convert(ctx, path)
	if err == nil {
		if moveErr := moveInto(d.processed, path); moveErr != nil {
			// Artifact exists but the source is still in the inbox; treat
			// as transient so the next attempt can complete the hand-off.
			att.Outcome = OutcomeTransient
			att.Err = fmt.Errorf("move to processed: %w", moveErr)
			return att
		}
		att.Outcome = OutcomeSuccess
		att.Artifact = res.ArtifactPath
		d.logger.Info("conversion succeeded",
			"attempt_id", att.ID,
			"path", path,
			"artifact", res.ArtifactPath,
			"rows", res.Rows,
			"elapsed", res.Elapsed,
		)
		return att
	}

	att.Err = err
	if errors.Is(err, errors.ErrConversion) {
		att.Outcome = OutcomePermanent
		if qErr := d.Quarantine(path); qErr != nil {
			d.logger.Error("failed to quarantine file", "path", path, "error", qErr)
		}
		d.logger.Error("permanent conversion failure",
			"attempt_id", att.ID,
			"path", path,
			"attempt", number,
			"reason", err.Error(),
		)
		return att
	}

	att.Outcome = OutcomeTransient
	d.logger.Warn("transient conversion failure",
		"attempt_id", att.ID,
		"path", path,
		"attempt", number,
		"error", err,
	)
	return att
}

// Quarantine moves a permanently failed source file into the quarantine
// directory, kept for inspection rather than deleted.
func (d *Dispatcher) Quarantine(path string) error {
	return moveInto(d.quarantine, path)
}

// moveInto renames path into dir, uniquifying the name on collision so a
// resubmitted file never clobbers an earlier one.
func moveInto(dir, path string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	base := filepath.Base(path)
	dest := filepath.Join(dir, base)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(base)
		stem := base[:len(base)-len(ext)]
		dest = filepath.Join(dir, fmt.Sprintf("%s.%d%s", stem, time.Now().UnixNano(), ext))
	}

	return os.Rename(path, dest)
}
