package metadata

import (
	"time"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/syncop"
)

// NormalizeTime brings t to the precision and zone every side agrees on.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// FileMetadata is the last known state of one file in a directory.
type FileMetadata struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Hash         string    `json:"hash,omitempty"`
	HashType     string    `json:"hashType,omitempty"`
	Chunks       *ChunkMap `json:"chunks,omitempty"`
}

func NewFileMetadata(name string, size int64, lastModified time.Time) *FileMetadata {
	return &FileMetadata{
		Name:         name,
		Size:         size,
		LastModified: NormalizeTime(lastModified),
	}
}

// SetStat records a new size and mtime. A stale hash is cleared in the same
// update whenever either of them changes. It reports whether anything changed.
func (f *FileMetadata) SetStat(size int64, lastModified time.Time) bool {
	lastModified = NormalizeTime(lastModified)
	if f.Size == size && f.LastModified.Equal(lastModified) {
		return false
	}
	f.Size = size
	f.LastModified = lastModified
	f.ClearHash()
	return true
}

func (f *FileMetadata) SetSize(size int64) bool {
	return f.SetStat(size, f.LastModified)
}

func (f *FileMetadata) SetLastModified(t time.Time) bool {
	return f.SetStat(f.Size, t)
}

func (f *FileMetadata) SetHash(hashType, hash string) {
	f.HashType = hashType
	f.Hash = hash
}

func (f *FileMetadata) ClearHash() {
	f.Hash = ""
	f.HashType = ""
}

func (f *FileMetadata) HasHash() bool {
	return f.Hash != "" && f.HashType != ""
}

// SameStat reports whether size and mtime match.
func (f *FileMetadata) SameStat(size int64, lastModified time.Time) bool {
	return f.Size == size && f.LastModified.Equal(NormalizeTime(lastModified))
}

// InFlight returns the pending action recorded in the chunk map, if any.
func (f *FileMetadata) InFlight() (syncop.Action, bool) {
	if f == nil || f.Chunks == nil || !f.Chunks.Action.InProgress() {
		return syncop.Done, false
	}
	return f.Chunks.Action, true
}

// CurrentAction is the action recorded for this file, Done when none.
func (f *FileMetadata) CurrentAction() syncop.Action {
	if f == nil || f.Chunks == nil {
		return syncop.Done
	}
	return f.Chunks.Action
}

func (f *FileMetadata) Clone() *FileMetadata {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Chunks = f.Chunks.Clone()
	return &clone
}

// DirectoryMetadata is one directory listing.
type DirectoryMetadata struct {
	Name        string               `json:"name"`
	Access      access.Bits          `json:"access"`
	Directories []*DirectoryMetadata `json:"directories,omitempty"`
	Files       []*FileMetadata      `json:"files,omitempty"`
}

// FileMap indexes the listed files by name.
func (d *DirectoryMetadata) FileMap() map[string]*FileMetadata {
	m := make(map[string]*FileMetadata, len(d.Files))
	for _, f := range d.Files {
		m[f.Name] = f
	}
	return m
}

func (d *DirectoryMetadata) Directory(name string) *DirectoryMetadata {
	for _, sub := range d.Directories {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

func (d *DirectoryMetadata) File(name string) *FileMetadata {
	for _, f := range d.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}
