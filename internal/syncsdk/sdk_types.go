package syncsdk

import "github.com/openmined/syftsync/internal/version"

const (
	HeaderUserAgent     = "User-Agent"
	HeaderSyncVersion   = version.Header
	HeaderBlockEncoding = "X-Syftsync-Block-Encoding"

	// EncodingZstd asks the server to compress read payloads.
	EncodingZstd = "zstd"
)

const (
	v1BlockRead  = "/api/v1/block/read"
	v1BlockWrite = "/api/v1/block/write"
	v1FileDelete = "/api/v1/file/delete"
	v1DirList    = "/api/v1/dir/list"
	v1DirMake    = "/api/v1/dir/make"
	v1DirDelete  = "/api/v1/dir/delete"
	v1HashQueue  = "/api/v1/hash/queue"
	v1HashStatus = "/api/v1/hash/status/{id}"
	healthzRoute = "/healthz"
)

// HealthResponse is returned by the server's health route.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
