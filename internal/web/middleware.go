package web

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// CORS lets the configurator be embedded from any origin, credentials included.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Export-Included", "X-Export-Missing"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// Gzip compresses responses except archives, the websocket and metrics.
func Gzip() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedExtensions([]string{".zip", ".pdf", ".png", ".jpg", ".jpeg", ".webp"}),
		gzip.WithExcludedPaths([]string{"/export/localzip", "/api/admin/ws", "/metrics"}),
	)
}
