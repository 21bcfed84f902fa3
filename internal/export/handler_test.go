package export

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"configurateur/internal/live"
)

type recorder struct {
	mu     sync.Mutex
	events []live.Event
}

func (r *recorder) Publish(ev live.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func newRouter(t *testing.T, e *env, maxBody int64) (*gin.Engine, *recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := &recorder{}
	h := NewHandler(e.exp, Paths{Frontend: "/srv/dist", Data: e.data, Datasheets: e.sheets}, maxBody, rec, zap.NewNop())
	r := gin.New()
	h.RegisterRoutes(r.Group("/export"))
	return r, rec
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_LocalZip(t *testing.T) {
	e := newEnv(t)
	e.file(t, "cameras.csv", "id\nCAM1\n")
	e.file(t, "Fiche_tech/cameras/CAM1.pdf", "sheet")
	r, rec := newRouter(t, e, 1<<20)

	w := postJSON(r, "/export/localzip", gin.H{
		"pdf_base64":  base64.StdEncoding.EncodeToString(fakePDF(100)),
		"product_ids": []string{"cam1", "cam2"},
		"zip_name":    `chantier/"nord"`,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="chantier__nord_.zip"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", w.Header().Get("X-Export-Included"))
	assert.Equal(t, "1", w.Header().Get("X-Export-Missing"))

	files := readArchive(t, w.Body.Bytes())
	assert.Contains(t, files, "fiches_techniques/cameras/CAM1.pdf")

	require.Len(t, rec.events, 1)
	assert.Equal(t, live.TypeExportCompleted, rec.events[0].Type)
}

func TestHandler_LocalZipDefaultsName(t *testing.T) {
	e := newEnv(t)
	r, _ := newRouter(t, e, 0)

	w := postJSON(r, "/export/localzip", gin.H{"pdf_base64": base64.StdEncoding.EncodeToString(fakePDF(100))})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="export.zip"`, w.Header().Get("Content-Disposition"))
}

func TestHandler_LocalZipRejects(t *testing.T) {
	e := newEnv(t)
	r, rec := newRouter(t, e, 2048)

	w := postJSON(r, "/export/localzip", gin.H{"pdf_base64": base64.StdEncoding.EncodeToString([]byte("0123456789"))})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid pdf"}`, w.Body.String())

	w = postJSON(r, "/export/localzip", gin.H{"pdf_base64": "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/export/localzip", strings.NewReader("{"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/export/localzip", gin.H{"pdf_base64": strings.Repeat("A", 4096)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	assert.Empty(t, rec.events)
}

func TestHandler_SelfTest(t *testing.T) {
	e := newEnv(t)
	r, _ := newRouter(t, e, 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/test", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "/srv/dist", out["frontend"])
	assert.Equal(t, e.data, out["data"])
	assert.Equal(t, e.sheets, out["datasheets"])
}
