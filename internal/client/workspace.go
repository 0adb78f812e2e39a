package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const lockFile = ".syftsync.lock"

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

// Workspace guards a local directory so only one sync process works on it.
// The holder's pid is kept in the lock file for the error other processes
// get.
type Workspace struct {
	Root string

	flock *flock.Flock
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{
		Root:  root,
		flock: flock.New(filepath.Join(root, lockFile)),
	}
}

func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace %s: %w", w.Root, err)
	}
	if !locked {
		if pid := w.holder(); pid > 0 {
			return fmt.Errorf("%w (pid %d)", ErrWorkspaceLocked, pid)
		}
		return ErrWorkspaceLocked
	}

	if err := os.WriteFile(w.flock.Path(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		slog.Warn("workspace lock owner", "path", w.flock.Path(), "error", err)
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace %s: %w", w.Root, err)
	}

	if err := os.Remove(w.flock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (w *Workspace) holder() int {
	data, err := os.ReadFile(w.flock.Path())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
