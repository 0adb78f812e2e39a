package middlewares

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

func Logger() gin.HandlerFunc {
	httpLogger := slog.Default().WithGroup("http")

	return slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		WithUserAgent:    true,
		Filters: []slogGin.Filter{
			// per-block requests are only logged when they fail
			func(ctx *gin.Context) bool {
				return !strings.HasPrefix(ctx.FullPath(), "/api/v1/block/") || len(ctx.Errors) > 0
			},
		},
	})
}
