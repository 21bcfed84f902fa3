package kpi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"configurateur/internal/live"
	"configurateur/internal/metrics"
	"configurateur/pkg/models"
)

const (
	maxEventName    = 80
	maxCollectBytes = 64 << 10
)

type Handler struct {
	Repo    *Repo
	Events  live.Publisher
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func NewHandler(repo *Repo, events live.Publisher, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Repo: repo, Events: live.OrDiscard(events), Metrics: m, Log: log}
}

// RegisterRoutes mounts /kpi under api. Collection is public; reading and
// purging need requireAuth.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	rg := api.Group("/kpi")
	rg.POST("/collect", h.collect)
	rg.POST("/event", h.collect) // alias kept for older frontends

	rg.GET("/summary", requireAuth, h.summary)
	rg.GET("/events", requireAuth, h.list)
	rg.GET("/export.csv", requireAuth, h.export)
	rg.DELETE("/reset-month", requireAuth, h.resetMonth)
}

type collectReq struct {
	SessionID *string         `json:"session_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

func (h *Handler) collect(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCollectBytes)

	var req collectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if n := utf8.RuneCountInString(req.Event); n < 1 || n > maxEventName {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event must be 1-80 chars"})
		return
	}

	payload := req.Payload
	if p := strings.TrimSpace(string(payload)); p == "" || p == "null" {
		payload = json.RawMessage(`{}`)
	} else if !strings.HasPrefix(p, "{") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be an object"})
		return
	}

	ev := models.KPIEvent{
		Event:   req.Event,
		Payload: payload,
		Path:    c.GetHeader("Referer"),
		UA:      c.GetHeader("User-Agent"),
		IP:      c.ClientIP(),
	}
	if req.SessionID != nil {
		ev.SessionID = *req.SessionID
	}

	if err := h.Repo.Insert(c.Request.Context(), ev); err != nil {
		h.Log.Error("kpi insert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "insert failed"})
		return
	}

	if h.Metrics != nil {
		h.Metrics.KPIEventsTotal.Inc()
	}
	h.Events.Publish(live.NewEvent(live.TypeKPIEvent, gin.H{"event": ev.Event, "session_id": ev.SessionID}))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) summary(c *gin.Context) {
	s, err := h.Repo.Summary(c.Request.Context())
	if err != nil {
		h.Log.Error("kpi summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) list(c *gin.Context) {
	limit := DefaultListLimit
	if s := strings.TrimSpace(c.Query("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	rows, err := h.Repo.List(c.Request.Context(), c.Query("event"), limit)
	if err != nil {
		h.Log.Error("kpi list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h *Handler) export(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="kpi_export.csv"`)
	c.Status(http.StatusOK)

	n, err := h.Repo.ExportCSV(c.Request.Context(), c.Writer)
	if err != nil {
		// headers are gone already; the truncated body is all we can do
		h.Log.Error("kpi export failed", zap.Int("rows", n), zap.Error(err))
		return
	}
	h.Log.Info("kpi exported", zap.Int("rows", n))
}

type resetMonthReq struct {
	Month string `json:"month"`
}

func (h *Handler) resetMonth(c *gin.Context) {
	var req resetMonthReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrBadMonth.Error()})
		return
	}
	m, err := ParseMonth(req.Month)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.Repo.DeleteMonth(c.Request.Context(), m)
	if err != nil {
		h.Log.Error("kpi reset failed", zap.String("month", m.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	h.Log.Info("kpi month reset", zap.String("month", m.String()), zap.Int64("deleted", n))
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}
