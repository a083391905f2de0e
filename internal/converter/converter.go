// Package converter turns FIT activity files into CSV artifacts.
//
// Domain-level defects in the input (bad header, truncation, CRC mismatch,
// undecodable record stream) surface as errors.CodeConversion and are never
// worth retrying. Anything else (unreadable source, unwritable outbox) is an
// operational fault and propagates as a plain error.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fitconvapp/fitconv-server/internal/errors"
)

// Result describes a completed conversion.
type Result struct {
	// ArtifactPath is the CSV written to the outbox.
	ArtifactPath string
	// Rows is the number of data rows in the artifact (excluding header).
	Rows int
	// Elapsed is the wall time the conversion took.
	Elapsed time.Duration
}

// Converter converts a source file into an output artifact.
type Converter interface {
	Convert(ctx context.Context, sourcePath string) (Result, error)
}

// FIT converts Garmin FIT files to CSV.
type FIT struct {
	outbox    string
	transform bool
	logger    *slog.Logger
}

// NewFIT creates a FIT to CSV converter writing artifacts into outbox.
// With transform enabled, coordinates become degrees, run cadence becomes
// steps per minute, and speed becomes a mm:ss per-mile pace.
func NewFIT(outbox string, transform bool, logger *slog.Logger) *FIT {
	return &FIT{
		outbox:    outbox,
		transform: transform,
		logger:    logger,
	}
}

// Convert decodes sourcePath and writes <stem>.csv into the outbox using
// the converter's configured transform setting. The artifact is written to a
// temp file and renamed into place so a partial CSV is never visible under
// its final name.
func (c *FIT) Convert(ctx context.Context, sourcePath string) (Result, error) {
	return c.ConvertWith(ctx, sourcePath, c.transform)
}

// ConvertWith is Convert with an explicit per-call transform choice; the
// upload route uses it to honor the form's checkbox.
func (c *FIT) ConvertWith(ctx context.Context, sourcePath string, transform bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()

	data, err := os.ReadFile(sourcePath) //#nosec G304 -- path comes from the watched inbox
	if err != nil {
		return Result{}, fmt.Errorf("read source: %w", err)
	}

	records, err := decode(data)
	if err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		// Structurally valid but carries no activity stream; an empty
		// artifact would silently mask a defective export.
		return Result{}, errors.Conversion("no record messages in FIT file")
	}

	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	artifactPath := filepath.Join(c.outbox, stem+".csv")

	rows, err := c.writeCSV(artifactPath, records, transform)
	if err != nil {
		return Result{}, err
	}

	elapsed := time.Since(start)
	c.logger.Debug("converted",
		"source", base,
		"artifact", filepath.Base(artifactPath),
		"rows", rows,
		"elapsed", elapsed,
	)

	return Result{
		ArtifactPath: artifactPath,
		Rows:         rows,
		Elapsed:      elapsed,
	}, nil
}
