// Package doctor checks the resolved directory layout before the watcher
// runs: existence, readability, writability, and free space. It mirrors what
// startup validation enforces, but as a report instead of a refusal.
package doctor

import (
	"fmt"
	"io"
	"os"

	"github.com/fitconvapp/fitconv-server/internal/config"
)

// lowSpaceBytes is the free-space threshold below which a warning is raised.
const lowSpaceBytes = 100 << 20

// Check is the result of inspecting one directory.
type Check struct {
	Label    string
	Path     string
	Exists   bool
	Readable bool
	Writable bool
	// FreeBytes is 0 when the platform offers no cheap way to ask.
	FreeBytes uint64
	Warnings  []string
}

// Run inspects every pipeline directory.
func Run(cfg *config.Config) []Check {
	return []Check{
		checkDir("inbox", cfg.Paths.Inbox),
		checkDir("outbox", cfg.Paths.Outbox),
		checkDir("quarantine", cfg.Paths.Quarantine),
		checkDir("processed", cfg.Paths.Processed),
	}
}

// Report writes a human-readable summary of the checks.
func Report(w io.Writer, checks []Check) {
	for _, c := range checks {
		state := "missing"
		if c.Exists {
			state = fmt.Sprintf("[%s%s]", mark(c.Readable, "r"), mark(c.Writable, "w"))
		}
		fmt.Fprintf(w, "  %-10s: %s  %s\n", c.Label, c.Path, state)
		for _, warn := range c.Warnings {
			fmt.Fprintf(w, "    -> %s\n", warn)
		}
	}
}

// Healthy reports whether every check passed without warnings.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if !c.Exists || !c.Readable || !c.Writable || len(c.Warnings) > 0 {
			return false
		}
	}
	return true
}

func checkDir(label, path string) Check {
	c := Check{Label: label, Path: path}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		c.Warnings = append(c.Warnings, "directory does not exist; it will be created at startup")
		return c
	}
	c.Exists = true

	if _, err := os.ReadDir(path); err == nil {
		c.Readable = true
	} else {
		c.Warnings = append(c.Warnings, "not readable")
	}

	if probe, err := os.CreateTemp(path, ".doctor-*"); err == nil {
		name := probe.Name()
		probe.Close()
		os.Remove(name)
		c.Writable = true
	} else {
		c.Warnings = append(c.Warnings, "not writable (you may need a different user or permissions)")
	}

	c.FreeBytes = freeSpace(path)
	if c.FreeBytes > 0 && c.FreeBytes < lowSpaceBytes {
		c.Warnings = append(c.Warnings, fmt.Sprintf("low free space (%d MB)", c.FreeBytes>>20))
	}

	return c
}

func mark(ok bool, ch string) string {
	if ok {
		return ch
	}
	return "-"
}
