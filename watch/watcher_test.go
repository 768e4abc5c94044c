package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/maclib/storage"
)

type countingReloader struct {
	calls atomic.Int64
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls.Add(1)
	return nil
}

type staticDigest string

func (d staticDigest) Digest() string { return string(d) }

func TestConfig_GetDebounceDelay(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 500 * time.Millisecond},
		{"bogus", 500 * time.Millisecond},
		{"-1s", 500 * time.Millisecond},
		{"50ms", 50 * time.Millisecond},
	}
	for _, tt := range tests {
		c := Config{DebounceDelay: tt.value}
		assert.Equal(t, tt.want, c.GetDebounceDelay(), tt.value)
	}
}

func startWatcher(t *testing.T, path string, reloader Reloader, digester Digester) *LibraryWatcher {
	t.Helper()
	w, err := NewLibraryWatcher(Config{Enabled: true, DebounceDelay: "20ms"}, path, reloader, digester, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// Let the watch register before writing.
	time.Sleep(50 * time.Millisecond)
	return w
}

func TestLibraryWatcher_ReloadsOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, storage.LibraryFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1"}`), 0644))

	reloader := &countingReloader{}
	w := startWatcher(t, path, reloader, staticDigest("stale"))

	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2"}`), 0644))

	assert.Eventually(t, func() bool { return reloader.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, reloader.calls.Load(), w.Reloads())
}

func TestLibraryWatcher_IgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, storage.LibraryFile)
	content := []byte(`{"version":"1"}`)

	probe := filepath.Join(t.TempDir(), "probe.json")
	require.NoError(t, os.WriteFile(probe, content, 0644))
	want, err := storage.DigestFile(probe)
	require.NoError(t, err)

	reloader := &countingReloader{}
	startWatcher(t, path, reloader, staticDigest(want))

	// Same bytes as the store's digest: treated as our own save.
	require.NoError(t, os.WriteFile(path, content, 0644))
	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, reloader.calls.Load())
}

func TestLibraryWatcher_WithFileStore(t *testing.T) {
	store := storage.NewFileStore(storage.Options{BaseDir: t.TempDir()})
	require.NoError(t, store.RestoreFromStream(strings.NewReader(`{"version":"1","clusters":[],"standards":[]}`)))
	_, err := store.Load()
	require.NoError(t, err)

	reloader := &countingReloader{}
	startWatcher(t, store.LibraryPath(), reloader, store)

	require.NoError(t, os.WriteFile(store.LibraryPath(), []byte(`{"version":"edited","clusters":[],"standards":[]}`), 0644))
	assert.Eventually(t, func() bool { return reloader.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
