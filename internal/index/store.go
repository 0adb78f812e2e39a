package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openmined/syftsync/internal/cache"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/scan"
	"github.com/openmined/syftsync/internal/utils"
)

const maxRecordSize = 64 * 1024

type Options struct {
	// Capacity is the number of directory indexes kept in memory.
	Capacity int
	// TTL after which a cached index is re-read from disk. Zero keeps it until evicted.
	TTL time.Duration
	// PurgeInterval enables a background sweep of expired indexes.
	PurgeInterval time.Duration
}

// UpdateFunc receives a private copy of the current entry (nil when absent)
// and returns the entry to store, or nil to remove it.
type UpdateFunc func(current *metadata.FileMetadata) (*metadata.FileMetadata, error)

// Store loads and saves the per-directory index files below root. Every
// access goes through one shared cache; the flat file on disk is the source
// of truth.
type Store struct {
	root  string
	cache *cache.Cache[string, *Index]

	// serializes read-modify-write cycles on top of the cache lock
	mu sync.Mutex
}

func NewStore(root string, opts Options) (*Store, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}

	s := &Store{root: root}
	s.cache, err = cache.New(cache.Options[string, *Index]{
		Capacity:      opts.Capacity,
		TTL:           opts.TTL,
		PurgeInterval: opts.PurgeInterval,
		Reader:        s.readIndex,
		Writer:        s.writeIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("index cache: %w", err)
	}
	return s, nil
}

func (s *Store) Root() string {
	return s.root
}

// LoadIndex returns a copy of the index of dir. A directory without an index
// file has an empty index.
func (s *Store) LoadIndex(dir string) (*Index, error) {
	key, err := scan.CleanRel(dir)
	if err != nil {
		return nil, err
	}
	idx, err := s.cache.Get(key)
	if err != nil {
		return nil, err
	}
	return idx.Clone(), nil
}

// SaveIndex replaces the whole index of idx.Dir.
func (s *Store) SaveIndex(idx *Index) error {
	key, err := scan.CleanRel(idx.Dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := idx.Clone()
	clone.Dir = key
	return s.cache.Put(key, clone)
}

// Lookup returns a copy of one entry, nil when it is not indexed.
func (s *Store) Lookup(dir, name string) (*metadata.FileMetadata, error) {
	idx, err := s.LoadIndex(dir)
	if err != nil {
		return nil, err
	}
	return idx.Get(name), nil
}

func (s *Store) SaveIndexItem(dir string, f *metadata.FileMetadata) error {
	return s.Update(dir, f.Name, func(*metadata.FileMetadata) (*metadata.FileMetadata, error) {
		return f.Clone(), nil
	})
}

func (s *Store) DeleteIndexItem(dir, name string) error {
	return s.Update(dir, name, func(*metadata.FileMetadata) (*metadata.FileMetadata, error) {
		return nil, nil
	})
}

// Update atomically rewrites one entry of the index of dir.
func (s *Store) Update(dir, name string, fn UpdateFunc) error {
	if !metadata.ValidName(name) {
		return fmt.Errorf("%w: %q", metadata.ErrInvalidName, name)
	}
	key, err := scan.CleanRel(dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.cache.Get(key)
	if err != nil {
		return err
	}
	next := current.Clone()

	updated, err := fn(next.Get(name))
	if err != nil {
		return err
	}

	if updated == nil {
		if !next.Delete(name) {
			return nil
		}
	} else {
		updated.Name = name
		next.Set(updated)
	}
	return s.cache.Put(key, next)
}

// Refresh reconciles the index of dir with a fresh listing of it. New files
// are added, changed stats replace the recorded ones (dropping stale hashes)
// and entries for files that are gone from disk are removed unless a transfer
// or delete is still in flight for them. The listed files are filled in with the
// indexed hash and chunk map. It returns a copy of the refreshed index.
func (s *Store) Refresh(dir string, listing *metadata.DirectoryMetadata) (*Index, error) {
	key, err := scan.CleanRel(dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.cache.Get(key)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	changed := false

	listed := listing.FileMap()
	for name, f := range listed {
		entry := next.Get(name)
		if entry == nil {
			entry = metadata.NewFileMetadata(name, f.Size, f.LastModified)
			next.Set(entry)
			changed = true
		} else if entry.SetStat(f.Size, f.LastModified) {
			changed = true
		}
		f.Hash = entry.Hash
		f.HashType = entry.HashType
		f.Chunks = entry.Chunks.Clone()
	}

	for name, entry := range next.Files {
		if _, ok := listed[name]; ok {
			continue
		}
		if _, inFlight := entry.InFlight(); inFlight {
			continue
		}
		// filtered out by this listing's hidden or ignore rules
		if s.exists(key, name) {
			continue
		}
		next.Delete(name)
		changed = true
	}

	if changed {
		if err := s.cache.Put(key, next); err != nil {
			return nil, err
		}
	}
	return next.Clone(), nil
}

// Forget drops the cached index of dir, e.g. after the directory was removed.
func (s *Store) Forget(dir string) {
	key, err := scan.CleanRel(dir)
	if err != nil {
		return
	}
	s.cache.Remove(key)
}

// ForgetTree drops dir and every cached index below it.
func (s *Store) ForgetTree(dir string) {
	key, err := scan.CleanRel(dir)
	if err != nil {
		return
	}
	for _, k := range s.cache.Keys() {
		if key == "" || k == key || strings.HasPrefix(k, key+"/") {
			s.cache.Remove(k)
		}
	}
}

func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) indexPath(key string) (string, error) {
	dirPath, err := scan.Join(s.root, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(dirPath, metadata.IndexFileName), nil
}

func (s *Store) exists(key, name string) bool {
	dirPath, err := scan.Join(s.root, key)
	if err != nil {
		return false
	}
	info, err := os.Lstat(filepath.Join(dirPath, name))
	return err == nil && info.Mode().IsRegular()
}

func (s *Store) readIndex(key string) (*Index, error) {
	path, err := s.indexPath(key)
	if err != nil {
		return nil, err
	}

	idx := New(key)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	} else if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	defer file.Close()

	skipped := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		f, err := metadata.ParseRecord(line)
		if err != nil {
			skipped++
			slog.Warn("index skipping record", "dir", key, "error", err)
			continue
		}
		idx.Set(f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}

	slog.Debug("index loaded", "dir", key, "entries", idx.Len(), "skipped", skipped)
	return idx, nil
}

func (s *Store) writeIndex(key string, idx *Index) error {
	path, err := s.indexPath(key)
	if err != nil {
		return err
	}

	if idx.Len() == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove index %s: %w", path, err)
		}
		return nil
	}

	err = utils.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		for _, name := range idx.Names() {
			record, err := metadata.FormatRecord(idx.Files[name])
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, record+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}

	slog.Debug("index saved", "dir", key, "entries", idx.Len())
	return nil
}
