package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/metadata"
	"github.com/openmined/syftsync/internal/server/handlers/api"
	"github.com/openmined/syftsync/internal/server/handlers/files"
	"github.com/openmined/syftsync/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRoutes(t *testing.T, policy access.Policy) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	svc, err := NewServices(&Config{RootDir: root, Policy: policy})
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return SetupRoutes(svc), root
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.SyncAPIError {
	t.Helper()
	var apiErr api.SyncAPIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	h, _ := setupTestRoutes(t, access.AllowAll)

	w := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_ClientVersion(t *testing.T) {
	h, _ := setupTestRoutes(t, access.AllowAll)
	body := map[string]any{"path": ""}

	w := do(t, h, http.MethodPost, "/api/v1/dir/list", body, version.Header, "99.0.0")
	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
	assert.Equal(t, api.CodeVersionMismatch, decodeError(t, w).Code)

	w = do(t, h, http.MethodPost, "/api/v1/dir/list", body, version.Header, version.Version)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays reachable for any client
	w = do(t, h, http.MethodGet, "/healthz", nil, version.Header, "99.0.0")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_ErrorCodes(t *testing.T) {
	h, root := setupTestRoutes(t, access.AllowAll)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing name", http.MethodPost, "/api/v1/block/read", map[string]any{"blockSize": 4}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"zero block size", http.MethodPost, "/api/v1/block/read", map[string]any{"name": "a.txt"}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"missing file", http.MethodPost, "/api/v1/block/read", map[string]any{"name": "b.txt", "blockSize": 4}, http.StatusNotFound, api.CodeNotFound},
		{"escape", http.MethodPost, "/api/v1/dir/list", map[string]any{"path": "../.."}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"bad payload", http.MethodPost, "/api/v1/block/write", map[string]any{"name": "a.txt", "length": 3, "data": []byte("zzz"), "compressed": true}, http.StatusBadRequest, api.CodeCodec},
		{"unknown hash", http.MethodGet, "/api/v1/hash/status/nope", nil, http.StatusNotFound, api.CodeNotFound},
		{"bad algorithm", http.MethodPost, "/api/v1/hash/queue", map[string]any{"hashType": "md4"}, http.StatusBadRequest, api.CodeInvalidRequest},
		{"delete root", http.MethodPost, "/api/v1/dir/delete", map[string]any{"path": "."}, http.StatusBadRequest, api.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestRoutes_PolicyDenied(t *testing.T) {
	h, _ := setupTestRoutes(t, access.Policy{Read: true})

	w := do(t, h, http.MethodPost, "/api/v1/block/write", map[string]any{"name": "a.txt", "length": 1, "data": []byte("a")})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeAccessDenied, decodeError(t, w).Code)

	w = do(t, h, http.MethodPost, "/api/v1/dir/make", map[string]any{"path": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRoutes_ReadCompressed(t *testing.T) {
	h, root := setupTestRoutes(t, access.AllowAll)
	content := bytes.Repeat([]byte("compress me "), 100)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), content, 0o644))

	body := map[string]any{"name": "a.txt", "blockSize": 4096}

	w := do(t, h, http.MethodPost, "/api/v1/block/read", body)
	require.Equal(t, http.StatusOK, w.Code)
	var plain struct {
		Data       []byte `json:"data"`
		Length     int64  `json:"length"`
		Compressed bool   `json:"compressed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plain))
	assert.False(t, plain.Compressed)
	assert.Equal(t, content, plain.Data)

	w = do(t, h, http.MethodPost, "/api/v1/block/read", body, files.HeaderBlockEncoding, files.EncodingZstd)
	require.Equal(t, http.StatusOK, w.Code)
	var packed struct {
		Data       []byte `json:"data"`
		Length     int64  `json:"length"`
		Compressed bool   `json:"compressed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &packed))
	assert.True(t, packed.Compressed)
	assert.Less(t, len(packed.Data), len(content))
	assert.Equal(t, int64(len(content)), packed.Length)
}

func TestRoutes_ListAndMake(t *testing.T) {
	h, root := setupTestRoutes(t, access.AllowAll)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	w := do(t, h, http.MethodPost, "/api/v1/dir/make", map[string]any{"path": "sub/deeper"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.DirExists(t, filepath.Join(root, "sub", "deeper"))

	w = do(t, h, http.MethodPost, "/api/v1/dir/list", map[string]any{"path": "", "recursive": true})
	require.Equal(t, http.StatusOK, w.Code)

	var dir metadata.DirectoryMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dir))
	require.Len(t, dir.Files, 1)
	assert.Equal(t, "a.txt", dir.Files[0].Name)
	assert.Equal(t, int64(5), dir.Files[0].Size)
	require.NotNil(t, dir.Directory("sub"))
	assert.NotNil(t, dir.Directory("sub").Directory("deeper"))
	assert.True(t, dir.Access.CanWriteDir())
}

func TestConfig_Validate(t *testing.T) {
	root := t.TempDir()

	cfg := &Config{RootDir: root, HTTP: HTTPConfig{Addr: DefaultAddr}}
	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.RootDir))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no root", Config{HTTP: HTTPConfig{Addr: DefaultAddr}}},
		{"root is a file", Config{RootDir: filepath.Join(root, "missing"), HTTP: HTTPConfig{Addr: DefaultAddr}}},
		{"bad addr", Config{RootDir: root, HTTP: HTTPConfig{Addr: "nope"}}},
		{"cert without key", Config{RootDir: root, HTTP: HTTPConfig{Addr: DefaultAddr, CertFile: "c.pem"}}},
		{"bad compression", Config{RootDir: root, HTTP: HTTPConfig{Addr: DefaultAddr}, Compression: "max"}},
		{"negative block size", Config{RootDir: root, HTTP: HTTPConfig{Addr: DefaultAddr}, MaxBlockSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}
