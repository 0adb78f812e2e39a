package endpoint

import (
	"context"
	"time"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/metadata"
)

// Endpoint is one side of a sync: a directory tree that can be listed and
// read or written block by block. Paths are slash separated and relative to
// the endpoint's root.
type Endpoint interface {
	ReadBlock(ctx context.Context, req *ReadBlockRequest) (*ReadBlockResponse, error)
	WriteBlock(ctx context.Context, req *WriteBlockRequest) (*WriteBlockResponse, error)
	DeleteFile(ctx context.Context, req *DeleteFileRequest) error
	ListDirectory(ctx context.Context, req *ListDirectoryRequest) (*metadata.DirectoryMetadata, error)
	MakeDirectory(ctx context.Context, req *MakeDirectoryRequest) error
	DeleteDirectory(ctx context.Context, req *DeleteDirectoryRequest) error
	HashDirectory(ctx context.Context, req *HashDirectoryRequest) (*HashDirectoryResponse, error)
	HashStatus(ctx context.Context, id string) (*hasher.Status, error)
}

type ReadBlockRequest struct {
	Dir       string `json:"dir"`
	Name      string `json:"name" binding:"required"`
	Offset    int64  `json:"offset" binding:"gte=0"`
	BlockSize int64  `json:"blockSize" binding:"required,gt=0"`
}

type ReadBlockResponse struct {
	Data   []byte `json:"data"`
	Length int64  `json:"length"`
	CRC32  uint32 `json:"crc32"`
	EOF    bool   `json:"eof"`
	// Compressed is set by transports when Data travels zstd compressed.
	Compressed bool `json:"compressed,omitempty"`
}

// WriteBlockRequest writes Data at Offset. With EOF set the file is also
// truncated to Offset+Length and its mtime set to Timestamp.
type WriteBlockRequest struct {
	Dir        string    `json:"dir"`
	Name       string    `json:"name" binding:"required"`
	Offset     int64     `json:"offset" binding:"gte=0"`
	Length     int64     `json:"length" binding:"gte=0"`
	Data       []byte    `json:"data"`
	EOF        bool      `json:"eof"`
	Timestamp  time.Time `json:"timestamp"`
	Compressed bool      `json:"compressed,omitempty"`
}

type WriteBlockResponse struct {
	Length int64  `json:"length"`
	CRC32  uint32 `json:"crc32"`
}

type DeleteFileRequest struct {
	Dir  string `json:"dir"`
	Name string `json:"name" binding:"required"`
}

type ListDirectoryRequest struct {
	Path        string `json:"path"`
	Recursive   bool   `json:"recursive"`
	HiddenDirs  bool   `json:"hiddenDirs"`
	HiddenFiles bool   `json:"hiddenFiles"`
}

type MakeDirectoryRequest struct {
	Path string `json:"path" binding:"required"`
}

// DeleteDirectoryRequest removes Path. Files allows removing the files it
// contains, Recursive removes the whole subtree.
type DeleteDirectoryRequest struct {
	Path      string `json:"path" binding:"required"`
	Files     bool   `json:"files"`
	Recursive bool   `json:"recursive"`
}

type HashDirectoryRequest struct {
	ID             string `json:"id"`
	Path           string `json:"path"`
	HashType       string `json:"hashType"`
	Recursive      bool   `json:"recursive"`
	HiddenDirs     bool   `json:"hiddenDirs"`
	HiddenFiles    bool   `json:"hiddenFiles"`
	ReHashExisting bool   `json:"reHashExisting"`
}

type HashDirectoryResponse struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
}
