package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/endpoint"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/index"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/reconcile"
	"github.com/openmined/syftsync/internal/scan"
	"github.com/openmined/syftsync/internal/syncop"
	"github.com/openmined/syftsync/internal/syncsdk"
	"github.com/openmined/syftsync/internal/transfer"
)

const hashPollInterval = 250 * time.Millisecond

var ErrFilesFailed = errors.New("files failed to sync")

// Client reconciles its local directory with a remote endpoint.
type Client struct {
	config       *Config
	ws           *Workspace
	store        *index.Store
	ignore       *scan.IgnoreList
	hashes       *hasher.Scheduler
	local        *endpoint.Local
	remote       endpoint.Endpoint
	remotePolicy access.Policy
	exec         *transfer.Executor
	closeRemote  func()

	hashOnce   sync.Once
	hashCancel context.CancelFunc
	hashDone   chan struct{}
}

// New creates a client talking to the server at config.ServerURL.
func New(config *Config) (*Client, error) {
	sdk, err := syncsdk.New(&syncsdk.Config{
		BaseURL:     config.ServerURL,
		Timeout:     config.Timeout,
		Compression: config.Compression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sdk: %w", err)
	}

	c, err := newClient(config, sdk)
	if err != nil {
		sdk.Close()
		return nil, err
	}
	c.closeRemote = sdk.Close
	return c, nil
}

// NewWithRemote creates a client against any endpoint.
func NewWithRemote(config *Config, remote endpoint.Endpoint) (*Client, error) {
	return newClient(config, remote)
}

func newClient(config *Config, remote endpoint.Endpoint) (*Client, error) {
	store, err := index.NewStore(config.LocalDir, index.Options{
		Capacity:      config.Cache.Capacity,
		TTL:           config.Cache.TTL,
		PurgeInterval: config.Cache.PurgeInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	ignore := scan.NewIgnoreList(config.LocalDir)
	ignore.Load()

	hashes := hasher.New(store, hasher.Config{Ignore: ignore})
	local := endpoint.NewLocal(store, hashes, endpoint.LocalConfig{
		// reading is what a sync is for, so only write and delete are configurable
		Policy:       access.Policy{Read: true, Write: config.Local.Write, Delete: config.Local.Delete},
		MaxBlockSize: max(config.BlockSize, endpoint.DefaultMaxBlockSize),
		Ignore:       ignore,
	})

	return &Client{
		config:       config,
		ws:           NewWorkspace(config.LocalDir),
		store:        store,
		ignore:       ignore,
		hashes:       hashes,
		local:        local,
		remote:       remote,
		remotePolicy: access.Policy{Read: true, Write: config.Remote.Write, Delete: config.Remote.Delete},
		exec:         transfer.NewExecutor(local, remote, store, transfer.Config{BlockSize: config.BlockSize}),
		closeRemote:  func() {},
	}, nil
}

// Close stops the local hash worker and releases the index.
func (c *Client) Close() {
	if c.hashCancel != nil {
		c.hashCancel()
		<-c.hashDone
	}
	c.store.Close()
	c.closeRemote()
}

// startHasher runs the local hash worker until Close.
func (c *Client) startHasher() {
	c.hashOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.hashCancel = cancel
		c.hashDone = make(chan struct{})
		go func() {
			defer close(c.hashDone)
			if err := c.hashes.Run(ctx); err != nil {
				slog.Error("local hash worker", "error", err)
			}
		}()
	})
}

// Summary counts what a sync run did.
type Summary struct {
	Copied      int
	Deleted     int
	Directories int
	Skipped     int
	UpToDate    int
	Failed      int
	Bytes       int64
	Took        time.Duration
}

func (s *Summary) String() string {
	return fmt.Sprintf("copied=%d (%s) deleted=%d dirs=%d skipped=%d uptodate=%d failed=%d took=%s",
		s.Copied, humanize.Bytes(uint64(s.Bytes)), s.Deleted, s.Directories, s.Skipped, s.UpToDate, s.Failed, s.Took.Round(time.Millisecond))
}

// Sync reconciles rel, a directory relative to the local root, with the
// same directory on the remote. Failures of single files are counted and
// reported through ErrFilesFailed once the run finished.
func (c *Client) Sync(ctx context.Context, rel string) (*Summary, error) {
	if err := c.ws.Lock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := c.ws.Unlock(); err != nil {
			slog.Warn("workspace unlock", "error", err)
		}
	}()
	return c.sync(ctx, rel)
}

func (c *Client) sync(ctx context.Context, rel string) (*Summary, error) {
	rel, err := scan.CleanRel(rel)
	if err != nil {
		return nil, endpoint.E(endpoint.KindValidation, "sync", rel, err)
	}
	if c.config.HashAfterList {
		c.startHasher()
	}

	start := time.Now()
	r := &run{client: c, execute: true, summary: &Summary{}}
	slog.Info("sync start", "dir", rel, "direction", c.config.SyncDirection(), "recursive", c.config.Recursive)

	err = r.start(ctx, rel)
	r.summary.Took = time.Since(start)
	if err != nil {
		slog.Error("sync aborted", "dir", rel, "error", err, "summary", r.summary.String())
		return r.summary, err
	}

	slog.Info("sync done", "dir", rel, "summary", r.summary.String())
	if r.summary.Failed > 0 {
		return r.summary, fmt.Errorf("%w: %d", ErrFilesFailed, r.summary.Failed)
	}
	return r.summary, nil
}

// Plan walks rel like Sync does and reports what a sync would do.
func (c *Client) Plan(ctx context.Context, rel string) (*Report, error) {
	rel, err := scan.CleanRel(rel)
	if err != nil {
		return nil, endpoint.E(endpoint.KindValidation, "plan", rel, err)
	}

	r := &run{client: c, summary: &Summary{}, report: &Report{}}
	if err := r.start(ctx, rel); err != nil {
		return nil, err
	}
	return r.report, nil
}

// run is one walk over a tree. Without execute it only records the plan.
type run struct {
	client  *Client
	execute bool
	summary *Summary
	report  *Report
}

// start resolves the directory a run begins at. A side where it is missing
// gets it created when the direction and the permissions allow it. The
// directory itself is never deleted.
func (r *run) start(ctx context.Context, rel string) error {
	c := r.client
	local, err := r.list(ctx, c.local, rel, false)
	if err != nil {
		return err
	}
	remote, err := r.list(ctx, c.remote, rel, true)
	if err != nil {
		return err
	}

	switch {
	case local != nil && remote != nil:
		return r.level(ctx, rel, local, remote)
	case local == nil && remote == nil:
		return endpoint.Errorf(endpoint.KindNotFound, "sync", rel, "directory exists on neither side")
	case rel == "":
		return endpoint.Errorf(endpoint.KindNotFound, "sync", rel, "root directory missing on one side")
	}

	parentRel := path.Dir(rel)
	if parentRel == "." {
		parentRel = ""
	}

	var (
		parent *metadata.DirectoryMetadata
		model  access.Model
	)
	if local == nil {
		parent, err = r.list(ctx, c.local, parentRel, false)
	} else {
		parent, err = r.list(ctx, c.remote, parentRel, true)
	}
	if err != nil {
		return err
	}
	if parent == nil {
		return endpoint.Errorf(endpoint.KindNotFound, "sync", parentRel, "parent directory missing")
	}
	if local == nil {
		model = access.RemoteOnly(parent.Access, remote.Access)
	} else {
		model = access.LocalOnly(local.Access, parent.Access)
	}

	existence := syncop.ExistenceOf(local != nil, remote != nil)
	action := reconcile.DecideDirectory(c.config.SyncDirection(), existence, model)
	if action.IsDelete() {
		action = syncop.Skip
	}

	if r.report != nil {
		r.report.add(parentRel, []*reconcile.PlanEntry{{
			Type:      syncop.EntryDirectory,
			Name:      path.Base(rel),
			LocalDir:  local,
			RemoteDir: remote,
			Existence: existence,
			Access:    model,
			Action:    action,
		}})
	}

	if action == syncop.Skip {
		slog.Info("sync nothing to do", "dir", rel, "existence", existence)
		r.summary.Skipped++
		return nil
	}

	if r.execute {
		if err := c.exec.MakeDirectory(ctx, rel, action); err != nil {
			return err
		}
		r.summary.Directories++
	}
	return r.visit(ctx, rel, parent.Access, parent.Access)
}

// visit lists rel on both sides and processes it. A side where rel does not
// exist is planned as an empty directory with the capabilities of its parent.
func (r *run) visit(ctx context.Context, rel string, localParent, remoteParent access.Bits) error {
	local, err := r.list(ctx, r.client.local, rel, false)
	if err != nil {
		return err
	}
	remote, err := r.list(ctx, r.client.remote, rel, true)
	if err != nil {
		return err
	}

	name := path.Base(rel)
	switch {
	case local == nil && remote == nil:
		slog.Debug("sync directory vanished", "dir", rel)
		return nil
	case local == nil:
		local = absentListing(name, localParent)
	case remote == nil:
		remote = absentListing(name, remoteParent)
	}
	return r.level(ctx, rel, local, remote)
}

// level plans one directory and carries out its entries in plan order.
func (r *run) level(ctx context.Context, rel string, local, remote *metadata.DirectoryMetadata) error {
	c := r.client
	idx, err := c.store.LoadIndex(rel)
	if err != nil {
		return fmt.Errorf("load index %q: %w", rel, err)
	}

	entries, err := reconcile.Plan(reconcile.Input{
		Direction: c.config.SyncDirection(),
		Recursive: c.config.Recursive,
		Local:     local,
		Remote:    remote,
		Index:     idx,
	})
	if err != nil {
		return err
	}

	if r.report != nil {
		r.report.add(rel, entries)
	}
	if r.execute && c.config.HashAfterList {
		r.hashAfterList(ctx, rel)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.apply(ctx, rel, local, remote, e); err != nil {
			if r.fatal(ctx, err) {
				return err
			}
			r.summary.Failed++
			slog.Error("sync entry failed", "dir", rel, "name", e.Name, "action", e.Action, "kind", endpoint.KindOf(err), "error", err)
		}
	}
	return nil
}

// fatal reports whether err stops the whole run rather than one entry.
func (r *run) fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, reconcile.ErrUnexpectedAction) ||
		errors.Is(err, transfer.ErrUnexpectedAction)
}

func (r *run) apply(ctx context.Context, rel string, local, remote *metadata.DirectoryMetadata, e *reconcile.PlanEntry) error {
	if e.Type == syncop.EntryDirectory && e.Action != syncop.Skip {
		return r.directory(ctx, rel, local, remote, e)
	}
	if !r.execute {
		return nil
	}

	switch {
	case e.Action == syncop.Skip:
		r.summary.Skipped++
	case e.Action == syncop.Done:
		r.summary.UpToDate++
	case e.Action.IsCopy():
		return r.copy(ctx, rel, e)
	case e.Action.IsDelete():
		if err := r.client.exec.DeleteFile(ctx, rel, e.Name, e.Action); err != nil {
			return err
		}
		r.summary.Deleted++
	default:
		return fmt.Errorf("%w: %s for file %q", reconcile.ErrUnexpectedAction, e.Action, e.Name)
	}
	return nil
}

func (r *run) copy(ctx context.Context, rel string, e *reconcile.PlanEntry) error {
	source := e.Local
	if e.Action.TargetsLocal() {
		source = e.Remote
	}
	if source == nil {
		r.client.exec.Abandon(rel, e.Name, e.Action)
		return endpoint.Errorf(endpoint.KindNotFound, "sync file", path.Join(rel, e.Name), "source no longer exists")
	}

	stats, err := r.client.exec.SyncFile(ctx, rel, source, e.Action)
	if err != nil {
		return err
	}
	r.summary.Copied++
	r.summary.Bytes += stats.Bytes
	return nil
}

func (r *run) directory(ctx context.Context, rel string, local, remote *metadata.DirectoryMetadata, e *reconcile.PlanEntry) error {
	child := path.Join(rel, e.Name)

	switch e.Action {
	case syncop.DeleteDirectoryFromLocal, syncop.DeleteDirectoryFromRemote:
		if !r.execute {
			return nil
		}
		if err := r.client.exec.DeleteDirectory(ctx, child, e.Action); err != nil {
			return err
		}
		r.summary.Directories++
		return nil
	case syncop.SyncRemoteDirToLocal, syncop.SyncLocalDirToRemote:
		if r.execute {
			if err := r.client.exec.MakeDirectory(ctx, child, e.Action); err != nil {
				return err
			}
			r.summary.Directories++
		}
	case syncop.SyncDirectory:
	default:
		return fmt.Errorf("%w: %s for directory %q", reconcile.ErrUnexpectedAction, e.Action, e.Name)
	}

	return r.visit(ctx, child, local.Access, remote.Access)
}

// list returns nil for a directory that does not exist. Remote listings are
// masked with the permissions configured for the remote side.
func (r *run) list(ctx context.Context, ep endpoint.Endpoint, rel string, remote bool) (*metadata.DirectoryMetadata, error) {
	dir, err := ep.ListDirectory(ctx, &endpoint.ListDirectoryRequest{
		Path:        rel,
		HiddenDirs:  r.client.config.HiddenDirs,
		HiddenFiles: r.client.config.HiddenFiles,
	})
	if errors.Is(err, endpoint.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if remote {
		maskListing(dir, r.client.remotePolicy)
	}
	return dir, nil
}

// hashAfterList queues hashing of the listed level on both sides. A busy
// scheduler is not an error, the files get hashed on a later run.
func (r *run) hashAfterList(ctx context.Context, rel string) {
	c := r.client
	req := &endpoint.HashDirectoryRequest{
		Path:        rel,
		HashType:    c.config.HashType,
		HiddenDirs:  c.config.HiddenDirs,
		HiddenFiles: c.config.HiddenFiles,
	}
	for _, side := range []struct {
		name string
		ep   endpoint.Endpoint
	}{{"local", c.local}, {"remote", c.remote}} {
		resp, err := side.ep.HashDirectory(ctx, req)
		if errors.Is(err, endpoint.ErrBusy) {
			slog.Debug("hash queue busy", "side", side.name, "dir", rel)
		} else if err != nil {
			slog.Warn("hash queue", "side", side.name, "dir", rel, "error", err)
		} else {
			slog.Debug("hash queued", "side", side.name, "dir", rel, "id", resp.ID)
		}
	}
}

func maskListing(dir *metadata.DirectoryMetadata, p access.Policy) {
	dir.Access = dir.Access.Mask(p)
	for _, sub := range dir.Directories {
		maskListing(sub, p)
	}
}

func absentListing(name string, parent access.Bits) *metadata.DirectoryMetadata {
	return &metadata.DirectoryMetadata{Name: name, Access: parent.Absent()}
}

// HashRequest asks for the files below Path to be hashed on one side.
type HashRequest struct {
	Path           string
	Remote         bool
	Wait           bool
	ReHashExisting bool
}

// Hash queues a hash task locally or on the remote. With Wait set it blocks
// until the task finished.
func (c *Client) Hash(ctx context.Context, req HashRequest) (*hasher.Status, error) {
	rel, err := scan.CleanRel(req.Path)
	if err != nil {
		return nil, endpoint.E(endpoint.KindValidation, "hash directory", req.Path, err)
	}
	hreq := &endpoint.HashDirectoryRequest{
		Path:           rel,
		HashType:       c.config.HashType,
		Recursive:      c.config.Recursive,
		HiddenDirs:     c.config.HiddenDirs,
		HiddenFiles:    c.config.HiddenFiles,
		ReHashExisting: req.ReHashExisting,
	}

	if !req.Remote {
		c.startHasher()
		h, err := c.local.SubmitHash(hreq)
		if err != nil {
			return nil, err
		}
		if req.Wait {
			return h.Wait(ctx)
		}
		return c.local.HashStatus(ctx, h.ID)
	}

	resp, err := c.remote.HashDirectory(ctx, hreq)
	if err != nil {
		return nil, err
	}
	if !req.Wait {
		return c.remote.HashStatus(ctx, resp.ID)
	}
	return c.waitRemoteHash(ctx, resp.ID)
}

// HashStatus returns the status of a hash task on one side.
func (c *Client) HashStatus(ctx context.Context, id string, remote bool) (*hasher.Status, error) {
	if remote {
		return c.remote.HashStatus(ctx, id)
	}
	return c.local.HashStatus(ctx, id)
}

func (c *Client) waitRemoteHash(ctx context.Context, id string) (*hasher.Status, error) {
	ticker := time.NewTicker(hashPollInterval)
	defer ticker.Stop()

	for {
		status, err := c.remote.HashStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status.Done {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
