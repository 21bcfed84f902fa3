package export

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"configurateur/internal/live"
)

// Paths reported by the export self-test.
type Paths struct {
	Frontend   string
	Data       string
	Datasheets string
}

type Handler struct {
	Exporter     *Exporter
	Paths        Paths
	MaxBodyBytes int64
	Events       live.Publisher
	Log          *zap.Logger
}

func NewHandler(exp *Exporter, paths Paths, maxBody int64, events live.Publisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Exporter:     exp,
		Paths:        paths,
		MaxBodyBytes: maxBody,
		Events:       live.OrDiscard(events),
		Log:          log,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/localzip", h.localZip) // POST /export/localzip
	rg.GET("/test", h.selfTest)      // GET /export/test
}

type localZipReq struct {
	PDFBase64  string   `json:"pdf_base64"`
	ProductIDs []string `json:"product_ids"`
	ZipName    string   `json:"zip_name"`
}

func (h *Handler) localZip(c *gin.Context) {
	if h.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes)
	}

	var req localZipReq
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	doc, err := h.Exporter.Decode(req.PDFBase64)
	if err != nil {
		h.Exporter.count("invalid_document")
		h.Log.Info("export rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pdf"})
		return
	}

	res, err := h.Exporter.Export(c.Request.Context(), Request{
		Document: doc,
		IDs:      req.ProductIDs,
		Name:     req.ZipName,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pdf"})
			return
		}
		h.Log.Error("export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	m := res.Manifest
	h.Log.Info("export built",
		zap.String("name", res.Name),
		zap.Int("requested", m.TotalIDsRequested),
		zap.Int("included", m.TotalDatasheetsIncluded),
		zap.Int("missing", m.TotalMissing),
		zap.Int("bytes", len(res.Archive)))
	h.Events.Publish(live.NewEvent(live.TypeExportCompleted, gin.H{
		"name":      res.Name,
		"requested": m.TotalIDsRequested,
		"included":  m.TotalDatasheetsIncluded,
		"missing":   m.TotalMissing,
	}))

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Name))
	c.Header("X-Export-Included", fmt.Sprint(m.TotalDatasheetsIncluded))
	c.Header("X-Export-Missing", fmt.Sprint(m.TotalMissing))
	c.Data(http.StatusOK, "application/zip", res.Archive)
}

func (h *Handler) selfTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"frontend":   h.Paths.Frontend,
		"data":       h.Paths.Data,
		"datasheets": h.Paths.Datasheets,
	})
}
