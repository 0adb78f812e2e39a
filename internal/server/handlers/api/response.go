package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftsync/internal/endpoint"
)

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, SyncAPIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithEndpointError responds with the status and code matching the
// kind of err.
func AbortWithEndpointError(ctx *gin.Context, err error) {
	status, code := StatusOf(endpoint.KindOf(err))
	AbortWithError(ctx, status, code, err)
}

// StatusOf maps an endpoint error kind to its HTTP status and API code.
func StatusOf(kind endpoint.Kind) (int, string) {
	switch kind {
	case endpoint.KindValidation:
		return http.StatusBadRequest, CodeInvalidRequest
	case endpoint.KindPermission:
		return http.StatusForbidden, CodeAccessDenied
	case endpoint.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case endpoint.KindIntegrity:
		return http.StatusUnprocessableEntity, CodeIntegrity
	case endpoint.KindCodec:
		return http.StatusBadRequest, CodeCodec
	case endpoint.KindIO:
		return http.StatusInternalServerError, CodeIO
	case endpoint.KindBusy:
		return http.StatusTooManyRequests, CodeRateLimited
	}
	return http.StatusInternalServerError, CodeInternalError
}
