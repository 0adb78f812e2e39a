package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftsync/internal/server/handlers/api"
	"github.com/openmined/syftsync/internal/version"
)

// ClientVersion rejects clients whose version header names an incompatible
// release. Requests without the header pass.
func ClientVersion() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		peer := ctx.GetHeader(version.Header)
		if peer != "" && !version.Compatible(peer) {
			api.AbortWithError(ctx, http.StatusUpgradeRequired, api.CodeVersionMismatch,
				fmt.Errorf("client version %s is not compatible with server version %s", peer, version.Version))
			return
		}
		ctx.Next()
	}
}
