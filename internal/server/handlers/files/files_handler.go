package files

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftsync/internal/codec"
	"github.com/openmined/syftsync/internal/endpoint"
	"github.com/openmined/syftsync/internal/server/handlers/api"
)

const (
	HeaderBlockEncoding = "X-Syftsync-Block-Encoding"
	EncodingZstd        = "zstd"
)

var errNoCodec = errors.New("compression is disabled on this server")

// FilesHandler exposes a local endpoint over HTTP
type FilesHandler struct {
	ep    endpoint.Endpoint
	codec *codec.Codec
}

// New creates a handler. blockCodec may be nil, in which case payloads are
// never compressed and compressed writes are rejected.
func New(ep endpoint.Endpoint, blockCodec *codec.Codec) *FilesHandler {
	return &FilesHandler{
		ep:    ep,
		codec: blockCodec,
	}
}

func (h *FilesHandler) ReadBlock(ctx *gin.Context) {
	var req endpoint.ReadBlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	resp, err := h.ep.ReadBlock(ctx.Request.Context(), &req)
	if err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	if h.codec != nil && strings.EqualFold(ctx.GetHeader(HeaderBlockEncoding), EncodingZstd) {
		resp.Data, resp.Compressed = h.codec.Pack(resp.Data)
	}

	ctx.PureJSON(http.StatusOK, resp)
}

func (h *FilesHandler) WriteBlock(ctx *gin.Context) {
	var req endpoint.WriteBlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if req.Compressed {
		rel := path.Join(req.Dir, req.Name)
		if h.codec == nil {
			api.AbortWithEndpointError(ctx, endpoint.E(endpoint.KindCodec, "write block", rel, errNoCodec))
			return
		}
		data, err := h.codec.Unpack(req.Data, true)
		if err != nil {
			api.AbortWithEndpointError(ctx, endpoint.E(endpoint.KindCodec, "write block", rel, err))
			return
		}
		req.Data, req.Compressed = data, false
	}

	resp, err := h.ep.WriteBlock(ctx.Request.Context(), &req)
	if err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, resp)
}

func (h *FilesHandler) DeleteFile(ctx *gin.Context) {
	var req endpoint.DeleteFileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.ep.DeleteFile(ctx.Request.Context(), &req); err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, gin.H{
		"deleted": path.Join(req.Dir, req.Name),
	})
}

func (h *FilesHandler) ListDirectory(ctx *gin.Context) {
	var req endpoint.ListDirectoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	dir, err := h.ep.ListDirectory(ctx.Request.Context(), &req)
	if err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, dir)
}

func (h *FilesHandler) MakeDirectory(ctx *gin.Context) {
	var req endpoint.MakeDirectoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.ep.MakeDirectory(ctx.Request.Context(), &req); err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, gin.H{
		"created": req.Path,
	})
}

func (h *FilesHandler) DeleteDirectory(ctx *gin.Context) {
	var req endpoint.DeleteDirectoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.ep.DeleteDirectory(ctx.Request.Context(), &req); err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, gin.H{
		"deleted": req.Path,
	})
}

func (h *FilesHandler) HashDirectory(ctx *gin.Context) {
	var req endpoint.HashDirectoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	resp, err := h.ep.HashDirectory(ctx.Request.Context(), &req)
	if err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusAccepted, resp)
}

func (h *FilesHandler) HashStatus(ctx *gin.Context) {
	id := ctx.Param("id")

	status, err := h.ep.HashStatus(ctx.Request.Context(), id)
	if err != nil {
		api.AbortWithEndpointError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, status)
}
