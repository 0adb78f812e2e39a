package hasher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/index"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/queue"
	"github.com/openmined/syftsync/internal/scan"
)

const (
	DefaultBacklog    = 32
	DefaultHistory    = 128
	defaultBufferSize = 64 * 1024
)

var (
	ErrBacklogFull    = errors.New("hash backlog is full")
	ErrStopped        = errors.New("hash scheduler stopped")
	ErrUnknownTask    = errors.New("unknown hash task")
	ErrAlreadyRunning = errors.New("hash scheduler already running")

	errChanged = errors.New("file changed while hashing")
)

// Task asks for the files below Path to be hashed.
type Task struct {
	ID             string `json:"id"`
	Path           string `json:"path"`
	Algorithm      string `json:"hashType"`
	Recursive      bool   `json:"recursive"`
	HiddenDirs     bool   `json:"hiddenDirs"`
	HiddenFiles    bool   `json:"hiddenFiles"`
	ReHashExisting bool   `json:"reHashExisting"`
}

// Status is the progress of one task.
type Status struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Algorithm  string    `json:"hashType"`
	Started    bool      `json:"started"`
	Done       bool      `json:"done"`
	Failed     bool      `json:"failed"`
	Message    string    `json:"message,omitempty"`
	Hashed     int       `json:"hashed"`
	Errors     int       `json:"errors"`
	QueuedAt   time.Time `json:"queuedAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type Config struct {
	// Backlog is the number of tasks that can wait for the worker.
	Backlog int
	// History is the number of task statuses kept for polling.
	History int
	// BufferSize is the read size used while streaming a file.
	BufferSize int
	Ignore     *scan.IgnoreList
}

type job struct {
	task   Task
	status *Status
	done   chan struct{}
}

// Handle tracks a submitted task.
type Handle struct {
	ID    string
	job   *job
	sched *Scheduler
}

// Done is closed once the task finished.
func (h *Handle) Done() <-chan struct{} {
	return h.job.done
}

// Wait blocks until the task finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*Status, error) {
	select {
	case <-h.job.done:
		return h.sched.snapshot(h.job.status), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scheduler hashes files on a single background worker, strictly in
// submission order. Digests are persisted through the index store.
type Scheduler struct {
	store   *index.Store
	cfg     Config
	jobs    chan *job
	history *queue.Ring[*Status]

	mu      sync.Mutex // guards statuses and stopped
	stopped bool
	running atomic.Bool
}

func New(store *index.Store, cfg Config) *Scheduler {
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Scheduler{
		store:   store,
		cfg:     cfg,
		jobs:    make(chan *job, cfg.Backlog),
		history: queue.NewRing[*Status](cfg.History),
	}
}

// Submit queues a task. An empty id gets a generated one.
func (s *Scheduler) Submit(task Task) (*Handle, error) {
	algorithm, err := NormalizeAlgorithm(task.Algorithm)
	if err != nil {
		return nil, err
	}
	task.Algorithm = algorithm
	if task.Path, err = scan.CleanRel(task.Path); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	j := &job{
		task: task,
		status: &Status{
			ID:        task.ID,
			Path:      task.Path,
			Algorithm: task.Algorithm,
			QueuedAt:  time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	select {
	case s.jobs <- j:
	default:
		return nil, ErrBacklogFull
	}
	s.history.Push(j.status)

	slog.Debug("hash task queued", "id", task.ID, "path", task.Path, "algorithm", task.Algorithm)
	return &Handle{ID: task.ID, job: j, sched: s}, nil
}

// Status returns a copy of the most recent status recorded for id.
func (s *Scheduler) Status(id string) (*Status, error) {
	status, ok := s.history.Find(func(st *Status) bool { return st.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return s.snapshot(status), nil
}

func (s *Scheduler) snapshot(status *Status) *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *status
	return &clone
}

func (s *Scheduler) update(status *Status, fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(status)
}

// Run processes tasks until ctx is done. Tasks still waiting are failed.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	slog.Info("hash scheduler started", "backlog", s.cfg.Backlog, "history", s.cfg.History)

	for {
		select {
		case <-ctx.Done():
			s.stop()
			slog.Info("hash scheduler stopped")
			return nil
		case j := <-s.jobs:
			s.process(ctx, j)
		}
	}
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	for {
		select {
		case j := <-s.jobs:
			s.finish(j, ErrStopped)
		default:
			return
		}
	}
}

func (s *Scheduler) finish(j *job, err error) {
	s.update(j.status, func(st *Status) {
		st.Done = true
		st.FinishedAt = time.Now().UTC()
		if err != nil {
			st.Failed = true
			st.Message = err.Error()
		}
	})
	close(j.done)
}

func (s *Scheduler) process(ctx context.Context, j *job) {
	task := j.task
	s.update(j.status, func(st *Status) {
		st.Started = true
		st.StartedAt = time.Now().UTC()
	})

	start := time.Now()
	opts := scan.Options{
		HiddenDirs:  task.HiddenDirs,
		HiddenFiles: task.HiddenFiles,
		Ignore:      s.cfg.Ignore,
		Policy:      access.AllowAll,
	}

	err := scan.Walk(s.store.Root(), task.Path, task.Recursive, opts, func(rel string, dir *metadata.DirectoryMetadata) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.hashDirectory(j, rel, dir)
	})
	if err != nil {
		slog.Error("hash task failed", "id", task.ID, "path", task.Path, "error", err)
	}

	s.finish(j, err)
	st := s.snapshot(j.status)
	slog.Info("hash task done", "id", task.ID, "path", task.Path, "hashed", st.Hashed, "errors", st.Errors, "took", time.Since(start))
}

func (s *Scheduler) hashDirectory(j *job, rel string, dir *metadata.DirectoryMetadata) error {
	task := j.task
	idx, err := s.store.Refresh(rel, dir)
	if err != nil {
		return err
	}

	for _, name := range idx.Names() {
		entry := idx.Get(name)
		if dir.File(name) == nil {
			continue
		}
		if _, inFlight := entry.InFlight(); inFlight {
			slog.Debug("hash skipping in-flight file", "dir", rel, "name", name)
			continue
		}
		if !task.ReHashExisting && entry.HasHash() && entry.HashType == task.Algorithm {
			continue
		}

		digest, info, err := s.hashFile(filepath.Join(s.store.Root(), filepath.FromSlash(rel), name), task.Algorithm)
		if errors.Is(err, errChanged) {
			slog.Debug("hash dropped, file changed", "dir", rel, "name", name)
			continue
		} else if err != nil {
			slog.Warn("hash file failed", "dir", rel, "name", name, "error", err)
			s.update(j.status, func(st *Status) { st.Errors++ })
			continue
		}

		stored := false
		err = s.store.Update(rel, name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
			if cur == nil {
				return nil, nil
			}
			if _, inFlight := cur.InFlight(); inFlight || !cur.SameStat(info.Size(), info.ModTime()) {
				return cur, nil
			}
			cur.SetHash(task.Algorithm, digest)
			stored = true
			return cur, nil
		})
		if err != nil {
			return fmt.Errorf("save hash of %s: %w", name, err)
		}
		if stored {
			s.update(j.status, func(st *Status) { st.Hashed++ })
		}
	}
	return nil
}

// hashFile digests path and reports errChanged when its stat moved while
// the digest was computed.
func (s *Scheduler) hashFile(path, algorithm string) (string, os.FileInfo, error) {
	before, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	digest, err := DigestFile(path, algorithm, s.cfg.BufferSize)
	if err != nil {
		return "", nil, err
	}
	after, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if before.Size() != after.Size() || !before.ModTime().Equal(after.ModTime()) {
		return "", nil, errChanged
	}
	return digest, after, nil
}
