package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// waitForEvent blocks until the source emits an event of the wanted type for
// path, skipping unrelated events along the way.
func waitForEvent(t *testing.T, src Source, typ EventType, path string) Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-src.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %s %s", typ, path)
			}
			if ev.Type == typ && ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event for %s", typ, path)
		}
	}
}

func startSource(t *testing.T, src Source) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		close(started)
		src.Start(ctx)
	}()
	<-started
	t.Cleanup(func() {
		cancel()
		src.Stop()
	})
}

func TestPollSource_DetectsLifecycle(t *testing.T) {
	dir := t.TempDir()
	src := newPollSource(testLogger(), Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, src.Watch(dir))
	startSource(t, src)

	path := filepath.Join(dir, "ride.fit")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	ev := waitForEvent(t, src, EventCreated, path)
	assert.Equal(t, int64(2), ev.Size)

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	waitForEvent(t, src, EventModified, path)

	require.NoError(t, os.Remove(path))
	waitForEvent(t, src, EventRemoved, path)
}

func TestPollSource_PreexistingFilesAreSilent(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.fit")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))

	src := newPollSource(testLogger(), Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, src.Watch(dir))
	startSource(t, src)

	select {
	case ev := <-src.Events():
		t.Fatalf("unexpected event for pre-existing file: %v %s", ev.Type, ev.Path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollSource_IgnoresPatterns(t *testing.T) {
	dir := t.TempDir()
	src := newPollSource(testLogger(), Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, src.Watch(dir))
	startSource(t, src)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "upload.part"), []byte("partial"), 0o644))
	wanted := filepath.Join(dir, "ride.fit")
	require.NoError(t, os.WriteFile(wanted, []byte("fit"), 0o644))

	// Only the eligible file surfaces.
	ev := waitForEvent(t, src, EventCreated, wanted)
	assert.Equal(t, wanted, ev.Path)
}

func TestPollSource_WatchRejectsFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir.fit")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	src := newPollSource(testLogger(), Options{PollInterval: 20 * time.Millisecond})
	assert.Error(t, src.Watch(file))
	assert.Error(t, src.Watch(filepath.Join(dir, "missing")))
}

func TestPollSource_StopIsIdempotent(t *testing.T) {
	src := newPollSource(testLogger(), Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
}
