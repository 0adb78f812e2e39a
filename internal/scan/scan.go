package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/metadata"
)

// reservedPrefix marks bookkeeping files (index, lock, temp files).
const reservedPrefix = ".syftsync"

var ErrOutsideRoot = errors.New("path escapes base directory")

type Options struct {
	HiddenDirs  bool
	HiddenFiles bool
	Ignore      *IgnoreList
	Policy      access.Policy
}

// Reserved reports whether name is one of our bookkeeping files.
func Reserved(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}

// CleanRel normalizes a slash separated path relative to a base directory.
// The base itself is "".
func CleanRel(rel string) (string, error) {
	rel = filepath.ToSlash(rel)
	cleaned := path.Clean("/" + rel)
	if strings.Contains(rel, "\x00") {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
		}
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// Join resolves rel below root and refuses anything outside of it.
func Join(root, rel string) (string, error) {
	cleaned, err := CleanRel(rel)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(root, filepath.FromSlash(cleaned))
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return abs, nil
}

// DirAccess derives a directory's capabilities from its mode, masked by policy.
func DirAccess(info fs.FileInfo, policy access.Policy) access.Bits {
	if info == nil || !info.IsDir() {
		return 0
	}

	bits := access.All &^ access.FileExists
	perm := info.Mode().Perm()
	if perm&0o400 == 0 {
		bits &^= access.DirRead | access.FileRead
	}
	if perm&0o200 == 0 {
		bits &^= access.DirWrite | access.DirDelete | access.FileWrite | access.FileDelete
	}
	return bits.Mask(policy)
}

// Dir lists one directory below root without descending.
func Dir(root, rel string, opts Options) (*metadata.DirectoryMetadata, error) {
	rel, err := CleanRel(rel)
	if err != nil {
		return nil, err
	}
	abs, err := Join(root, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", rel, fs.ErrInvalid)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	dir := &metadata.DirectoryMetadata{
		Name:   path.Base("/" + rel),
		Access: DirAccess(info, opts.Policy),
	}
	if rel == "" {
		dir.Name = ""
	}

	for _, de := range entries {
		name := de.Name()
		if Reserved(name) {
			continue
		}
		hidden := strings.HasPrefix(name, ".")
		childRel := path.Join(rel, name)

		if de.IsDir() {
			if hidden && !opts.HiddenDirs {
				continue
			}
			if opts.Ignore.ShouldIgnore(childRel + "/") {
				continue
			}
			childInfo, err := de.Info()
			if err != nil {
				slog.Warn("scan stat", "path", childRel, "error", err)
				continue
			}
			dir.Directories = append(dir.Directories, &metadata.DirectoryMetadata{
				Name:   name,
				Access: DirAccess(childInfo, opts.Policy),
			})
			continue
		}

		if !de.Type().IsRegular() {
			continue
		}
		if hidden && !opts.HiddenFiles {
			continue
		}
		if opts.Ignore.ShouldIgnore(childRel) {
			continue
		}
		if !metadata.ValidName(name) {
			slog.Warn("scan skipping unindexable name", "path", childRel)
			continue
		}

		fi, err := de.Info()
		if err != nil {
			slog.Warn("scan stat", "path", childRel, "error", err)
			continue
		}
		dir.Files = append(dir.Files, metadata.NewFileMetadata(name, fi.Size(), fi.ModTime()))
	}

	return dir, nil
}

// WalkFunc is called once per listed directory, parents before children.
type WalkFunc func(rel string, dir *metadata.DirectoryMetadata) error

// Walk lists rel and, when recursive, every directory below it.
func Walk(root, rel string, recursive bool, opts Options, fn WalkFunc) error {
	rel, err := CleanRel(rel)
	if err != nil {
		return err
	}

	dir, err := Dir(root, rel, opts)
	if err != nil {
		return err
	}
	if err := fn(rel, dir); err != nil {
		return err
	}
	if !recursive {
		return nil
	}

	for _, sub := range dir.Directories {
		if err := Walk(root, path.Join(rel, sub.Name), true, opts, fn); err != nil {
			return err
		}
	}
	return nil
}

// Tree lists rel and, when recursive, nests every child listing into it.
func Tree(root, rel string, recursive bool, opts Options) (*metadata.DirectoryMetadata, error) {
	dir, err := Dir(root, rel, opts)
	if err != nil {
		return nil, err
	}
	if !recursive {
		return dir, nil
	}

	for i, sub := range dir.Directories {
		child, err := Tree(root, path.Join(rel, sub.Name), true, opts)
		if err != nil {
			return nil, err
		}
		dir.Directories[i] = child
	}
	return dir, nil
}
