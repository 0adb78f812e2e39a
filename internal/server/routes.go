package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/syftsync/internal/server/handlers/files"
	"github.com/openmined/syftsync/internal/server/middlewares"
	"github.com/openmined/syftsync/internal/version"
)

func SetupRoutes(svc *Services) http.Handler {
	r := gin.New()

	filesH := files.New(svc.Endpoint, svc.Codec)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	v1 := r.Group("/api/v1", middlewares.ClientVersion())
	{
		// blocks
		v1.POST("/block/read", filesH.ReadBlock)
		v1.POST("/block/write", filesH.WriteBlock)

		// files and directories
		v1.POST("/file/delete", filesH.DeleteFile)
		v1.POST("/dir/list", filesH.ListDirectory)
		v1.POST("/dir/make", filesH.MakeDirectory)
		v1.POST("/dir/delete", filesH.DeleteDirectory)

		// hashing
		v1.POST("/hash/queue", filesH.HashDirectory)
		v1.GET("/hash/status/:id", filesH.HashStatus)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	// return a plaintext
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
