package client

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmined/syftsync/internal/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher_Debounces(t *testing.T) {
	dir := t.TempDir()
	fw := NewFileWatcher(dir, 100*time.Millisecond)
	fw.FilterPaths(func(path string) bool {
		return filepath.Base(path) == "ignored.txt"
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()
	// let the watch get established
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	select {
	case <-fw.Changes():
		t.Fatal("filtered event was delivered")
	case <-time.After(300 * time.Millisecond):
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte{byte(i)}, 0o644))
	}
	select {
	case <-fw.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	// the burst collapsed into a single change
	select {
	case <-fw.Changes():
		t.Fatal("burst delivered more than once")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestClient_Watch(t *testing.T) {
	f := newFixture(t, "remote", access.AllowAll)
	f.config.WatchDebounce = 50 * time.Millisecond
	f.config.WatchInterval = 500 * time.Millisecond
	f.local.write(t, "first.txt", "first", t0)
	c := f.client(t, nil)

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, "", func(*Summary, error) { runs.Add(1) })
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(f.remote.path("first.txt"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// a second process cannot sync while watching
	_, err := f.client(t, nil).Sync(context.Background(), "")
	assert.ErrorIs(t, err, ErrWorkspaceLocked)

	f.local.write(t, "second.txt", "second", t0)
	require.Eventually(t, func() bool {
		_, err := os.Stat(f.remote.path("second.txt"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestClient_IgnoredPath(t *testing.T) {
	f := newFixture(t, "both", access.AllowAll)
	f.local.write(t, ".syftsyncignore", "*.tmp\n", t0)
	c := f.client(t, nil)
	root := f.config.LocalDir

	tests := map[string]bool{
		"a.txt":               false,
		"dir/b.txt":           false,
		".syftsync.lock":      true,
		"dir/.syftsync.index": true,
		".hidden":             true,
		".git/config":         true,
		"build/out.tmp":       true,
		"../outside.txt":      true,
	}
	for rel, want := range tests {
		assert.Equal(t, want, c.ignoredPath(filepath.Join(root, filepath.FromSlash(rel))), rel)
	}
}
