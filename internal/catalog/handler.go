package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"configurateur/internal/datasheet"
	"configurateur/internal/live"
	"configurateur/internal/metrics"
	"configurateur/pkg/models"
)

type Handler struct {
	Store   *Store
	Index   *Index
	Locator *datasheet.Locator
	Events  live.Publisher
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func NewHandler(store *Store, index *Index, locator *datasheet.Locator, events live.Publisher, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:   store,
		Index:   index,
		Locator: locator,
		Events:  live.OrDiscard(events),
		Metrics: m,
		Log:     log,
	}
}

// RegisterRoutes mounts the catalog endpoints on the /api group. Writes and
// the admin views go through requireAuth.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	admin := api.Group("/admin", requireAuth)
	admin.GET("/catalog/:kind", h.getCatalog)
	admin.PUT("/catalog/:kind", h.putCatalog)

	// plain-text API still used by the admin panel
	api.GET("/csv/:name", h.getRaw)
	api.POST("/csv/:name", requireAuth, h.postRaw)

	api.GET("/products/:id", h.getProduct)
}

func (h *Handler) getCatalog(c *gin.Context) {
	kind := c.Param("kind")
	t, err := h.Store.Read(kind)
	if err != nil {
		h.fail(c, kind, err)
		return
	}
	f, _ := Lookup(kind)
	c.JSON(http.StatusOK, gin.H{
		"kind":     kind,
		"filename": f.Filename(),
		"columns":  t.Columns,
		"rows":     t.Rows,
	})
}

type putCatalogReq struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func (h *Handler) putCatalog(c *gin.Context) {
	kind := c.Param("kind")
	if _, ok := Lookup(kind); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown catalog"})
		return
	}

	var req putCatalogReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	rows := make([]map[string]string, 0, len(req.Rows))
	for _, r := range req.Rows {
		rows = append(rows, stringifyRow(r))
	}

	if err := h.Store.Write(kind, req.Columns, rows); err != nil {
		h.fail(c, kind, err)
		return
	}
	h.written(kind, len(rows))
	c.JSON(http.StatusOK, gin.H{"ok": true, "rows": len(rows)})
}

func (h *Handler) getRaw(c *gin.Context) {
	kind := c.Param("name")
	b, err := h.Store.ReadRaw(kind)
	if err != nil {
		h.fail(c, kind, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", b)
}

type postRawReq struct {
	Content *string `json:"content"`
}

func (h *Handler) postRaw(c *gin.Context) {
	kind := c.Param("name")
	if _, ok := Lookup(kind); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown catalog"})
		return
	}

	var req postRawReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content required"})
		return
	}
	if err := h.Store.WriteRaw(kind, *req.Content); err != nil {
		h.fail(c, kind, err)
		return
	}
	h.written(kind, -1)
	c.String(http.StatusOK, "OK")
}

func (h *Handler) getProduct(c *gin.Context) {
	id := NormalizeID(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}

	likely, known := h.Index.Resolve(id)
	family, path, found := h.Locator.Search(likely, id)

	if !known && !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !known {
		likely = family
	}

	out := models.Product{ID: id, Family: likely, Datasheet: found}
	if found {
		out.DatasheetFamily = family
		out.DatasheetURL = h.dataURL(path)
	}
	c.JSON(http.StatusOK, out)
}

// dataURL maps a file under the data root to its /data URL.
func (h *Handler) dataURL(path string) string {
	rel, err := filepath.Rel(h.Store.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return "/data/" + filepath.ToSlash(rel)
}

func (h *Handler) written(kind string, rows int) {
	if h.Metrics != nil {
		h.Metrics.CatalogWritesTotal.WithLabelValues(kind).Inc()
	}
	data := gin.H{"kind": kind}
	if rows >= 0 {
		data["rows"] = rows
	}
	h.Events.Publish(live.NewEvent(live.TypeCatalogUpdated, data))
	h.Log.Info("catalog written", zap.String("kind", kind), zap.Int("rows", rows))
}

func (h *Handler) fail(c *gin.Context, kind string, err error) {
	switch {
	case errors.Is(err, ErrUnknownCatalog):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown catalog"})
	case errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "file missing"})
	case errors.Is(err, ErrEmptyColumns):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty columns"})
	case errors.Is(err, ErrCatalogUnreadable):
		h.Log.Warn("catalog unreadable", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "catalog unreadable"})
	default:
		h.Log.Error("catalog operation failed", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog operation failed"})
	}
}

func stringifyRow(r map[string]any) map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		switch t := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = t
		case bool:
			// false and 0 are blank markers in the catalogs
			if t {
				out[k] = "True"
			} else {
				out[k] = ""
			}
		case float64:
			if t == 0 {
				out[k] = ""
			} else {
				out[k] = strconv.FormatFloat(t, 'f', -1, 64)
			}
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
