package index

import (
	"sort"

	"github.com/openmined/syftsync/internal/metadata"
)

// Index is the durable name to metadata map of one directory.
type Index struct {
	Dir   string
	Files map[string]*metadata.FileMetadata
}

func New(dir string) *Index {
	return &Index{Dir: dir, Files: make(map[string]*metadata.FileMetadata)}
}

// Get returns the entry for name, nil when absent.
func (idx *Index) Get(name string) *metadata.FileMetadata {
	return idx.Files[name]
}

func (idx *Index) Set(f *metadata.FileMetadata) {
	idx.Files[f.Name] = f
}

func (idx *Index) Delete(name string) bool {
	if _, ok := idx.Files[name]; !ok {
		return false
	}
	delete(idx.Files, name)
	return true
}

func (idx *Index) Len() int {
	return len(idx.Files)
}

// Names returns the indexed names in sorted order.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.Files))
	for name := range idx.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InFlight returns the entries carrying an unfinished transfer or delete.
func (idx *Index) InFlight() []*metadata.FileMetadata {
	var out []*metadata.FileMetadata
	for _, name := range idx.Names() {
		if _, ok := idx.Files[name].InFlight(); ok {
			out = append(out, idx.Files[name])
		}
	}
	return out
}

// Clone returns a deep copy, so callers never mutate cached state.
func (idx *Index) Clone() *Index {
	clone := New(idx.Dir)
	for name, f := range idx.Files {
		clone.Files[name] = f.Clone()
	}
	return clone
}
