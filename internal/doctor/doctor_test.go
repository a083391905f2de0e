package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitconvapp/fitconv-server/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Paths.Inbox = filepath.Join(root, "inbox")
	cfg.Paths.Outbox = filepath.Join(root, "outbox")
	cfg.Paths.Quarantine = filepath.Join(root, "quarantine")
	cfg.Paths.Processed = filepath.Join(root, "processed")
	return cfg
}

func makeDirs(t *testing.T, cfg *config.Config) {
	t.Helper()
	for _, dir := range []string{cfg.Paths.Inbox, cfg.Paths.Outbox, cfg.Paths.Quarantine, cfg.Paths.Processed} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
}

func TestRun_AllDirectoriesHealthy(t *testing.T) {
	cfg := testConfig(t)
	makeDirs(t, cfg)

	checks := Run(cfg)
	require.Len(t, checks, 4)

	for _, c := range checks {
		assert.True(t, c.Exists, c.Label)
		assert.True(t, c.Readable, c.Label)
		assert.True(t, c.Writable, c.Label)
	}
	assert.True(t, Healthy(checks))
}

func TestRun_MissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	makeDirs(t, cfg)
	cfg.Paths.Quarantine = filepath.Join(cfg.Paths.Quarantine, "does-not-exist")

	checks := Run(cfg)
	assert.False(t, Healthy(checks))

	var quarantine *Check
	for i := range checks {
		if checks[i].Label == "quarantine" {
			quarantine = &checks[i]
		}
	}
	require.NotNil(t, quarantine)
	assert.False(t, quarantine.Exists)
	assert.NotEmpty(t, quarantine.Warnings)
}

func TestReport_Rendering(t *testing.T) {
	cfg := testConfig(t)
	makeDirs(t, cfg)

	var sb strings.Builder
	Report(&sb, Run(cfg))

	out := sb.String()
	assert.Contains(t, out, "inbox")
	assert.Contains(t, out, "outbox")
	assert.Contains(t, out, "[rw]")
}

func TestReport_MissingDirectory(t *testing.T) {
	cfg := testConfig(t)

	var sb strings.Builder
	Report(&sb, Run(cfg))

	out := sb.String()
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "created at startup")
}
