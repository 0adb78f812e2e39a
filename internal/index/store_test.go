package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/syncop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 6, 7, 8, 9, 10_000_000, time.UTC)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(root, Options{Capacity: 8})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, root
}

func readIndexFile(t *testing.T, root, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(dir), metadata.IndexFileName))
	require.NoError(t, err)
	return string(data)
}

func TestStore_EmptyDirectoryHasEmptyIndex(t *testing.T) {
	s, root := newTestStore(t)

	idx, err := s.LoadIndex("")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())

	_, err = os.Stat(filepath.Join(root, metadata.IndexFileName))
	assert.True(t, errors.Is(err, os.ErrNotExist), "loading must not create the file")
}

func TestStore_SaveItemPersists(t *testing.T) {
	s, root := newTestStore(t)

	f := metadata.NewFileMetadata("a.txt", 100, t0)
	f.SetHash("md5", "abc")
	require.NoError(t, s.SaveIndexItem("", f))

	assert.Equal(t, "a.txt|1714979289010|100|md5|abc|\n", readIndexFile(t, root, ""))

	// a fresh store sees the durable state
	other, err := NewStore(root, Options{})
	require.NoError(t, err)
	defer other.Close()

	got, err := other.Lookup("", "a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.Size)
	assert.True(t, got.LastModified.Equal(metadata.NormalizeTime(t0)))
	assert.Equal(t, "abc", got.Hash)
}

func TestStore_LoadReturnsPrivateCopy(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SaveIndexItem("", metadata.NewFileMetadata("a", 1, t0)))

	idx, err := s.LoadIndex("")
	require.NoError(t, err)
	idx.Get("a").Size = 999
	idx.Delete("a")

	again, err := s.LoadIndex("")
	require.NoError(t, err)
	require.NotNil(t, again.Get("a"))
	assert.Equal(t, int64(1), again.Get("a").Size)
}

func TestStore_DeleteItemRemovesEmptyFile(t *testing.T) {
	s, root := newTestStore(t)
	require.NoError(t, s.SaveIndexItem("", metadata.NewFileMetadata("a", 1, t0)))
	require.NoError(t, s.SaveIndexItem("", metadata.NewFileMetadata("b", 2, t0)))

	require.NoError(t, s.DeleteIndexItem("", "a"))
	assert.Equal(t, 1, strings.Count(readIndexFile(t, root, ""), "\n"))

	require.NoError(t, s.DeleteIndexItem("", "b"))
	_, err := os.Stat(filepath.Join(root, metadata.IndexFileName))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// deleting an absent entry is a no-op
	require.NoError(t, s.DeleteIndexItem("", "missing"))
}

func TestStore_UpdateErrorLeavesIndexUntouched(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SaveIndexItem("", metadata.NewFileMetadata("a", 1, t0)))

	boom := errors.New("boom")
	err := s.Update("", "a", func(cur *metadata.FileMetadata) (*metadata.FileMetadata, error) {
		cur.Size = 42
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Lookup("", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Size)
}

func TestStore_RejectsInvalidNamesAndPaths(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.SaveIndexItem("", metadata.NewFileMetadata("a|b", 1, t0))
	assert.ErrorIs(t, err, metadata.ErrInvalidName)

	err = s.SaveIndexItem("", metadata.NewFileMetadata(metadata.IndexFileName, 1, t0))
	assert.ErrorIs(t, err, metadata.ErrInvalidName)

	_, err = s.LoadIndex("../outside")
	assert.Error(t, err)
}

func TestStore_SkipsCorruptRecords(t *testing.T) {
	s, root := newTestStore(t)
	content := "good|1714979289010|5|||\nnot a record\nbad|x|1|||\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, metadata.IndexFileName), []byte(content), 0o644))

	idx, err := s.LoadIndex("")
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, idx.Names())
}

func TestStore_Refresh(t *testing.T) {
	s, root := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	kept := metadata.NewFileMetadata("kept.txt", 10, t0)
	kept.SetHash("md5", "k")
	changed := metadata.NewFileMetadata("changed.txt", 10, t0)
	changed.SetHash("md5", "c")
	gone := metadata.NewFileMetadata("gone.txt", 10, t0)
	inFlight := metadata.NewFileMetadata("inflight.txt", 10, t0)
	inFlight.Chunks = &metadata.ChunkMap{BlockSize: 4, ChunkSize: 1, NumChunks: 3, Flags: 1, Action: syncop.CopyingFileToLocal}

	require.NoError(t, s.SaveIndex(&Index{Dir: "sub", Files: map[string]*metadata.FileMetadata{
		kept.Name: kept, changed.Name: changed, gone.Name: gone, inFlight.Name: inFlight,
	}}))

	listing := &metadata.DirectoryMetadata{Name: "sub", Files: []*metadata.FileMetadata{
		metadata.NewFileMetadata("kept.txt", 10, t0),
		metadata.NewFileMetadata("changed.txt", 11, t0),
		metadata.NewFileMetadata("new.txt", 3, t0),
	}}

	idx, err := s.Refresh("sub", listing)
	require.NoError(t, err)
	assert.Equal(t, []string{"changed.txt", "inflight.txt", "kept.txt", "new.txt"}, idx.Names())

	assert.Equal(t, "k", idx.Get("kept.txt").Hash)
	assert.False(t, idx.Get("changed.txt").HasHash(), "stat change drops the hash")
	assert.Equal(t, int64(11), idx.Get("changed.txt").Size)

	// listing is enriched from the index
	assert.Equal(t, "k", listing.File("kept.txt").Hash)
	assert.Equal(t, "", listing.File("changed.txt").Hash)

	content := readIndexFile(t, root, "sub")
	assert.NotContains(t, content, "gone.txt")
	assert.Contains(t, content, "inflight.txt|")
	assert.Contains(t, content, "CopyingFileToLocal")
}

func TestStore_RefreshWithoutChangesDoesNotWrite(t *testing.T) {
	s, root := newTestStore(t)
	require.NoError(t, s.SaveIndexItem("", metadata.NewFileMetadata("a", 1, t0)))

	path := filepath.Join(root, metadata.IndexFileName)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err := s.Refresh("", &metadata.DirectoryMetadata{Files: []*metadata.FileMetadata{
		metadata.NewFileMetadata("a", 1, t0),
	}})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, old, info.ModTime(), time.Second)
}

func TestStore_ForgetTreeRereadsFromDisk(t *testing.T) {
	s, root := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "y"), 0o755))
	require.NoError(t, s.SaveIndexItem("x/y", metadata.NewFileMetadata("a", 1, t0)))

	require.NoError(t, os.RemoveAll(filepath.Join(root, "x")))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "y"), 0o755))

	s.ForgetTree("x")
	idx, err := s.LoadIndex("x/y")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}
