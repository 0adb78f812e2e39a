package metadata

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/openmined/syftsync/internal/syncop"
)

// MaxChunks is the number of chunks a single completion word can track.
const MaxChunks = 64

var ErrInvalidBlockSize = errors.New("block size must be positive")

// ChunkMap is the resumable transfer plan of one file. Bit i of Flags is set
// once chunk i has been fully transferred.
type ChunkMap struct {
	BlockSize int64         `json:"blockSize"`
	ChunkSize int64         `json:"chunkSize"` // blocks per chunk
	NumChunks int           `json:"numChunks"`
	Flags     uint64        `json:"flags"`
	Action    syncop.Action `json:"action"`
}

// NewChunkMap plans a transfer of fileSize bytes in blocks of blockSize.
// The plan always covers the whole file with room to spare and never uses
// more than MaxChunks chunks.
func NewChunkMap(fileSize, blockSize int64) (*ChunkMap, error) {
	if blockSize <= 0 {
		return nil, ErrInvalidBlockSize
	}
	if fileSize < 0 {
		return nil, fmt.Errorf("invalid file size %d", fileSize)
	}

	cm := &ChunkMap{BlockSize: blockSize}
	if fileSize == 0 {
		return cm, nil
	}

	numBlocks := fileSize/blockSize + 1
	cm.ChunkSize = numBlocks/MaxChunks + 1
	cm.NumChunks = int((numBlocks + cm.ChunkSize - 1) / cm.ChunkSize)
	return cm, nil
}

// ChunkBytes is the number of bytes covered by one chunk.
func (c *ChunkMap) ChunkBytes() int64 {
	return c.BlockSize * c.ChunkSize
}

// Capacity is the number of bytes the plan can cover.
func (c *ChunkMap) Capacity() int64 {
	return c.ChunkBytes() * int64(c.NumChunks)
}

// Covers reports whether the plan is still valid for a file of size bytes.
func (c *ChunkMap) Covers(size int64) bool {
	if size == 0 {
		return c.NumChunks == 0
	}
	return c.Capacity() > size
}

func (c *ChunkMap) checkIndex(i int) {
	if i < 0 || i >= c.NumChunks {
		panic(fmt.Sprintf("chunk index %d out of range [0,%d)", i, c.NumChunks))
	}
}

func (c *ChunkMap) IsComplete(i int) bool {
	c.checkIndex(i)
	return c.Flags&(1<<uint(i)) != 0
}

func (c *ChunkMap) SetComplete(i int) {
	c.checkIndex(i)
	c.Flags |= 1 << uint(i)
}

// Completed is the number of chunks flagged complete.
func (c *ChunkMap) Completed() int {
	return bits.OnesCount64(c.Flags)
}

func (c *ChunkMap) AllComplete() bool {
	return c.Completed() == c.NumChunks
}

// Reset clears all progress and sets the in-flight action.
func (c *ChunkMap) Reset(action syncop.Action) {
	c.Flags = 0
	c.Action = action
}

func (c *ChunkMap) Clone() *ChunkMap {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *ChunkMap) String() string {
	return fmt.Sprintf("%d,%d,%d,%x,%s", c.BlockSize, c.ChunkSize, c.NumChunks, c.Flags, c.Action)
}
