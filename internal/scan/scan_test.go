package scan

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func names(files []*metadata.FileMetadata) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

func TestDir_FiltersReservedHiddenAndIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "aaa")
	writeFile(t, root, ".hidden", "h")
	writeFile(t, root, metadata.IndexFileName, "x|0|1|||")
	writeFile(t, root, ".syftsync.lock", "")
	writeFile(t, root, "notes.log", "log")
	writeFile(t, root, "pipe|name", "bad")
	writeFile(t, root, "sub/b.txt", "b")
	writeFile(t, root, ".git/config", "c")
	writeFile(t, root, IgnoreFileName, "*.log\n")

	ignore := NewIgnoreList(root)
	ignore.Load()

	dir, err := Dir(root, "", Options{Ignore: ignore, Policy: access.AllowAll})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names(dir.Files))
	require.Len(t, dir.Directories, 1)
	assert.Equal(t, "sub", dir.Directories[0].Name)

	f := dir.File("a.txt")
	require.NotNil(t, f)
	assert.Equal(t, int64(3), f.Size)

	dir, err = Dir(root, "", Options{HiddenFiles: true, HiddenDirs: true, Ignore: ignore, Policy: access.AllowAll})
	require.NoError(t, err)
	assert.Equal(t, []string{".hidden", "a.txt"}, names(dir.Files))
	assert.Len(t, dir.Directories, 2)
}

func TestDir_Access(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/a.txt", "a")

	dir, err := Dir(root, "sub", Options{Policy: access.AllowAll})
	require.NoError(t, err)
	assert.True(t, dir.Access.CanReadDir())
	assert.True(t, dir.Access.CanWriteDir())
	assert.True(t, dir.Access.ForFile(true).CanDeleteFile())

	dir, err = Dir(root, "sub", Options{Policy: access.Policy{Read: true}})
	require.NoError(t, err)
	assert.True(t, dir.Access.ForFile(true).CanReadFile())
	assert.False(t, dir.Access.CanWriteDir())
	assert.False(t, dir.Access.ForFile(true).CanDeleteFile())
}

func TestJoin_RejectsEscapes(t *testing.T) {
	root := t.TempDir()

	p, err := Join(root, "a/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b"), p)

	p, err = Join(root, "")
	require.NoError(t, err)
	assert.Equal(t, root, p)

	for _, bad := range []string{"..", "../x", "a/../../x", "a/..", "x\x00y"} {
		_, err := Join(root, bad)
		assert.ErrorIs(t, err, ErrOutsideRoot, bad)
	}
}

func TestWalkAndTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "x/b.txt", "b")
	writeFile(t, root, "x/y/c.txt", "c")

	var visited []string
	err := Walk(root, "", true, Options{Policy: access.AllowAll}, func(rel string, dir *metadata.DirectoryMetadata) error {
		visited = append(visited, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "x", "x/y"}, visited)

	tree, err := Tree(root, "", true, Options{Policy: access.AllowAll})
	require.NoError(t, err)
	x := tree.Directory("x")
	require.NotNil(t, x)
	y := x.Directory("y")
	require.NotNil(t, y)
	assert.Equal(t, []string{"c.txt"}, names(y.Files))
}
