package endpoint

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/index"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/scan"
	"github.com/openmined/syftsync/internal/utils"
)

const DefaultMaxBlockSize = 4 << 20

var errNotEmpty = errors.New("directory not empty")

type LocalConfig struct {
	Policy       access.Policy
	MaxBlockSize int64
	Ignore       *scan.IgnoreList
}

// Local serves a directory tree on this machine. Its index store and hash
// scheduler must be rooted at the same directory.
type Local struct {
	root   string
	cfg    LocalConfig
	store  *index.Store
	hashes *hasher.Scheduler
}

var _ Endpoint = (*Local)(nil)

// NewLocal creates a filesystem endpoint. hashes may be nil, in which case
// hash requests fail.
func NewLocal(store *index.Store, hashes *hasher.Scheduler, cfg LocalConfig) *Local {
	if cfg.MaxBlockSize <= 0 {
		cfg.MaxBlockSize = DefaultMaxBlockSize
	}
	return &Local{
		root:   store.Root(),
		cfg:    cfg,
		store:  store,
		hashes: hashes,
	}
}

func (l *Local) Root() string {
	return l.root
}

func (l *Local) Store() *index.Store {
	return l.store
}

func (l *Local) Policy() access.Policy {
	return l.cfg.Policy
}

// validFileName accepts a single path element that can be indexed and is not
// one of our bookkeeping files.
func validFileName(name string) bool {
	return metadata.ValidName(name) &&
		name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) &&
		!scan.Reserved(name)
}

// filePath resolves dir/name below the root.
func (l *Local) filePath(op, dir, name string) (abs, cleanDir, rel string, err error) {
	rel = path.Join(dir, name)
	if !validFileName(name) {
		return "", "", rel, Errorf(KindValidation, op, rel, "invalid file name %q", name)
	}
	cleanDir, err = scan.CleanRel(dir)
	if err != nil {
		return "", "", rel, E(KindValidation, op, rel, err)
	}
	rel = path.Join(cleanDir, name)
	abs, err = scan.Join(l.root, rel)
	if err != nil {
		return "", "", rel, E(KindValidation, op, rel, err)
	}
	return abs, cleanDir, rel, nil
}

func (l *Local) dirPath(op, p string) (abs, rel string, err error) {
	rel, err = scan.CleanRel(p)
	if err != nil {
		return "", p, E(KindValidation, op, p, err)
	}
	abs, err = scan.Join(l.root, rel)
	if err != nil {
		return "", rel, E(KindValidation, op, rel, err)
	}
	return abs, rel, nil
}

func (l *Local) ReadBlock(ctx context.Context, req *ReadBlockRequest) (*ReadBlockResponse, error) {
	const op = "read block"
	abs, _, rel, err := l.filePath(op, req.Dir, req.Name)
	if err != nil {
		return nil, err
	}
	if req.Offset < 0 {
		return nil, Errorf(KindValidation, op, rel, "negative offset %d", req.Offset)
	}
	if req.BlockSize <= 0 || req.BlockSize > l.cfg.MaxBlockSize {
		return nil, Errorf(KindValidation, op, rel, "block size %d out of range (0,%d]", req.BlockSize, l.cfg.MaxBlockSize)
	}
	if !l.cfg.Policy.Read {
		return nil, E(KindPermission, op, rel, nil)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fsError(op, rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fsError(op, rel, err)
	}
	if !info.Mode().IsRegular() {
		return nil, Errorf(KindValidation, op, rel, "not a regular file")
	}
	if req.Offset > info.Size() {
		return nil, Errorf(KindValidation, op, rel, "offset %d beyond end of file (%d)", req.Offset, info.Size())
	}

	buf := make([]byte, req.BlockSize)
	n, err := f.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fsError(op, rel, err)
	}
	data := buf[:n]

	return &ReadBlockResponse{
		Data:   data,
		Length: int64(n),
		CRC32:  crc32.ChecksumIEEE(data),
		EOF:    req.Offset+int64(n) >= info.Size(),
	}, nil
}

func (l *Local) WriteBlock(ctx context.Context, req *WriteBlockRequest) (*WriteBlockResponse, error) {
	const op = "write block"
	abs, dir, rel, err := l.filePath(op, req.Dir, req.Name)
	if err != nil {
		return nil, err
	}
	switch {
	case req.Offset < 0:
		return nil, Errorf(KindValidation, op, rel, "negative offset %d", req.Offset)
	case req.Length != int64(len(req.Data)):
		return nil, Errorf(KindValidation, op, rel, "length %d does not match payload of %d bytes", req.Length, len(req.Data))
	case req.Length > l.cfg.MaxBlockSize:
		return nil, Errorf(KindValidation, op, rel, "block of %d bytes exceeds %d", req.Length, l.cfg.MaxBlockSize)
	case req.EOF && req.Timestamp.IsZero():
		return nil, Errorf(KindValidation, op, rel, "final write without timestamp")
	case req.Compressed:
		return nil, Errorf(KindCodec, op, rel, "payload is still compressed")
	}
	if !l.cfg.Policy.Write {
		return nil, E(KindPermission, op, rel, nil)
	}
	if !utils.DirExists(filepath.Dir(abs)) {
		return nil, Errorf(KindNotFound, op, rel, "directory %q does not exist", dir)
	}

	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fsError(op, rel, err)
	}
	defer f.Close()

	if len(req.Data) > 0 {
		if _, err := f.WriteAt(req.Data, req.Offset); err != nil {
			return nil, fsError(op, rel, err)
		}
	}
	if req.EOF {
		if err := f.Truncate(req.Offset + req.Length); err != nil {
			return nil, fsError(op, rel, err)
		}
	}

	// checksum what reached the file, not what we were sent
	written := make([]byte, req.Length)
	n, err := f.ReadAt(written, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fsError(op, rel, err)
	}
	resp := &WriteBlockResponse{
		Length: int64(n),
		CRC32:  crc32.ChecksumIEEE(written[:n]),
	}

	if req.EOF {
		if err := f.Sync(); err != nil {
			return nil, fsError(op, rel, err)
		}
		mtime := metadata.NormalizeTime(req.Timestamp)
		if err := os.Chtimes(abs, mtime, mtime); err != nil {
			return nil, fsError(op, rel, err)
		}
		l.recordStat(dir, req.Name, req.Offset+req.Length, mtime)
	}
	return resp, nil
}

// recordStat updates the index after a file was finalized. The index only
// mirrors the filesystem here, so failures are logged and not returned.
func (l *Local) recordStat(dir, name string, size int64, mtime time.Time) {
	err := l.store.Update(dir, name, func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		if cur == nil {
			return metadata.NewFileMetadata(name, size, mtime), nil
		}
		// content was rewritten, a same-stat overwrite must not keep the old hash
		cur.SetStat(size, mtime)
		cur.ClearHash()
		return cur, nil
	})
	if err != nil {
		slog.Warn("index update failed", "dir", dir, "name", name, "error", err)
	}
}

func (l *Local) DeleteFile(ctx context.Context, req *DeleteFileRequest) error {
	const op = "delete file"
	abs, dir, rel, err := l.filePath(op, req.Dir, req.Name)
	if err != nil {
		return err
	}
	if !l.cfg.Policy.Delete {
		return E(KindPermission, op, rel, nil)
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return fsError(op, rel, err)
	}
	if info.IsDir() {
		return Errorf(KindValidation, op, rel, "is a directory")
	}
	if err := os.Remove(abs); err != nil {
		return fsError(op, rel, err)
	}
	slog.Debug("file deleted", "path", rel)

	if err := l.store.DeleteIndexItem(dir, req.Name); err != nil {
		slog.Warn("index update failed", "dir", dir, "name", req.Name, "error", err)
	}
	return nil
}

func (l *Local) ListDirectory(ctx context.Context, req *ListDirectoryRequest) (*metadata.DirectoryMetadata, error) {
	const op = "list directory"
	_, rel, err := l.dirPath(op, req.Path)
	if err != nil {
		return nil, err
	}
	if !l.cfg.Policy.Read {
		return nil, E(KindPermission, op, rel, nil)
	}

	opts := scan.Options{
		HiddenDirs:  req.HiddenDirs,
		HiddenFiles: req.HiddenFiles,
		Ignore:      l.cfg.Ignore,
		Policy:      l.cfg.Policy,
	}
	tree, err := scan.Tree(l.root, rel, req.Recursive, opts)
	if err != nil {
		return nil, fsError(op, rel, err)
	}

	l.refresh(rel, tree, req.Recursive)
	return tree, nil
}

// refresh brings the indexes of a listed tree up to date and fills the
// listing with the indexed hashes.
func (l *Local) refresh(rel string, dir *metadata.DirectoryMetadata, recursive bool) {
	if _, err := l.store.Refresh(rel, dir); err != nil {
		slog.Warn("index refresh failed", "dir", rel, "error", err)
	}
	if !recursive {
		return
	}
	for _, sub := range dir.Directories {
		l.refresh(path.Join(rel, sub.Name), sub, true)
	}
}

func (l *Local) MakeDirectory(ctx context.Context, req *MakeDirectoryRequest) error {
	const op = "make directory"
	abs, rel, err := l.dirPath(op, req.Path)
	if err != nil {
		return err
	}
	if rel == "" {
		return Errorf(KindValidation, op, rel, "path is required")
	}
	for _, part := range strings.Split(rel, "/") {
		if scan.Reserved(part) {
			return Errorf(KindValidation, op, rel, "reserved name %q", part)
		}
	}
	if !l.cfg.Policy.Write {
		return E(KindPermission, op, rel, nil)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fsError(op, rel, err)
	}
	return nil
}

func (l *Local) DeleteDirectory(ctx context.Context, req *DeleteDirectoryRequest) error {
	const op = "delete directory"
	abs, rel, err := l.dirPath(op, req.Path)
	if err != nil {
		return err
	}
	if rel == "" {
		return Errorf(KindValidation, op, rel, "refusing to delete the root directory")
	}
	if !l.cfg.Policy.Delete {
		return E(KindPermission, op, rel, nil)
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return fsError(op, rel, err)
	}
	if !info.IsDir() {
		return Errorf(KindValidation, op, rel, "not a directory")
	}

	if req.Recursive {
		if err := os.RemoveAll(abs); err != nil {
			return fsError(op, rel, err)
		}
	} else if err := removeFlat(abs, req.Files); errors.Is(err, errNotEmpty) {
		return E(KindValidation, op, rel, err)
	} else if err != nil {
		return fsError(op, rel, err)
	}

	l.store.ForgetTree(rel)
	slog.Debug("directory deleted", "path", rel, "recursive", req.Recursive)
	return nil
}

// removeFlat removes dir when it holds nothing but bookkeeping files, or
// also plain files when files is set.
func removeFlat(dir string, files bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var remove []string
	for _, de := range entries {
		switch {
		case scan.Reserved(de.Name()):
		case files && de.Type().IsRegular():
		default:
			return fmt.Errorf("%w: %s", errNotEmpty, de.Name())
		}
		remove = append(remove, filepath.Join(dir, de.Name()))
	}

	for _, p := range remove {
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	return os.Remove(dir)
}

// SubmitHash queues a hash task and returns its handle.
func (l *Local) SubmitHash(req *HashDirectoryRequest) (*hasher.Handle, error) {
	const op = "hash directory"
	if l.hashes == nil {
		return nil, Errorf(KindInternal, op, req.Path, "hashing is not enabled")
	}
	if !l.cfg.Policy.Read {
		return nil, E(KindPermission, op, req.Path, nil)
	}

	h, err := l.hashes.Submit(hasher.Task{
		ID:             req.ID,
		Path:           req.Path,
		Algorithm:      req.HashType,
		Recursive:      req.Recursive,
		HiddenDirs:     req.HiddenDirs,
		HiddenFiles:    req.HiddenFiles,
		ReHashExisting: req.ReHashExisting,
	})
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, hasher.ErrBacklogFull):
		return nil, E(KindBusy, op, req.Path, err)
	case errors.Is(err, hasher.ErrUnknownAlgorithm), errors.Is(err, scan.ErrOutsideRoot):
		return nil, E(KindValidation, op, req.Path, err)
	}
	return nil, E(KindInternal, op, req.Path, err)
}

func (l *Local) HashDirectory(ctx context.Context, req *HashDirectoryRequest) (*HashDirectoryResponse, error) {
	h, err := l.SubmitHash(req)
	if err != nil {
		return nil, err
	}
	return &HashDirectoryResponse{ID: h.ID, Queued: true}, nil
}

func (l *Local) HashStatus(ctx context.Context, id string) (*hasher.Status, error) {
	const op = "hash status"
	if l.hashes == nil {
		return nil, Errorf(KindInternal, op, id, "hashing is not enabled")
	}
	status, err := l.hashes.Status(id)
	if errors.Is(err, hasher.ErrUnknownTask) {
		return nil, E(KindNotFound, op, id, err)
	} else if err != nil {
		return nil, E(KindInternal, op, id, err)
	}
	return status, nil
}
