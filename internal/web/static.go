package web

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const dataMaxAge = "public, max-age=3600"

// prefixes owned by the API; the SPA fallback never answers for them
var reserved = []string{"/api/", "/data/", "/export/", "/health", "/assets/", "/metrics"}

type Config struct {
	DataDir     string
	FrontendDir string
	// PublicDir is checked for admin.html when the build does not ship one.
	PublicDir string
}

// Register serves the catalog data, the built frontend and its SPA fallback.
func Register(r *gin.Engine, cfg Config, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	if isDir(cfg.DataDir) {
		data := r.Group("/data", cacheControl(dataMaxAge))
		data.StaticFS("/", gin.Dir(cfg.DataDir, false))
		log.Info("serving data", zap.String("dir", cfg.DataDir))
	}

	if !isDir(cfg.FrontendDir) {
		log.Warn("frontend not found", zap.String("expected", cfg.FrontendDir))
		r.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"error": "frontend not found", "expected": cfg.FrontendDir})
		})
		return
	}

	if assets := filepath.Join(cfg.FrontendDir, "assets"); isDir(assets) {
		r.StaticFS("/assets", gin.Dir(assets, false))
	}

	adminCandidates := []string{filepath.Join(cfg.FrontendDir, "admin.html")}
	if cfg.PublicDir != "" {
		adminCandidates = append(adminCandidates, filepath.Join(cfg.PublicDir, "admin.html"))
	}
	r.GET("/admin", func(c *gin.Context) {
		for _, p := range adminCandidates {
			if isFile(p) {
				c.File(p)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "admin.html not found"})
	})

	index := filepath.Join(cfg.FrontendDir, "index.html")
	r.GET("/", func(c *gin.Context) {
		if isFile(index) {
			c.File(index)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "index.html not found"})
	})

	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		for _, pre := range reserved {
			if strings.HasPrefix(p, pre) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
		}

		// path.Clean on a rooted path cannot climb above the frontend dir
		file := filepath.Join(cfg.FrontendDir, filepath.FromSlash(path.Clean("/"+p)))
		if isFile(file) {
			c.File(file)
			return
		}
		if isFile(index) {
			c.File(index)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	log.Info("serving frontend", zap.String("dir", cfg.FrontendDir))
}

func cacheControl(v string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", v)
		c.Next()
	}
}

func isDir(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
