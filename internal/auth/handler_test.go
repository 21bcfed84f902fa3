package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenStore struct{ *MemoryStore }

func (brokenStore) Active(context.Context, string) error { return errors.New("dial tcp: refused") }

func newAuthRouter(t *testing.T, store TokenStore) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h, err := NewHandler("s3cret", testTokens(), store, zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api")
	h.RegisterRoutes(api)
	api.GET("/admin/ping", h.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jti": MustGetClaims(c).ID})
	})
	return r, h
}

func call(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := call(r, http.MethodPost, "/api/login", `{"password":"s3cret"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int(time.Hour.Seconds()), out.ExpiresIn)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestLogin(t *testing.T) {
	r, _ := newAuthRouter(t, NewMemoryStore())

	w := call(r, http.MethodPost, "/api/login", `{"password":"nope"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"bad password"}`, w.Body.String())

	w = call(r, http.MethodPost, "/api/login", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/api/login", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_ = login(t, r)
}

func TestAuthMiddleware(t *testing.T) {
	store := NewMemoryStore()
	r, _ := newAuthRouter(t, store)
	token := login(t, r)

	w := call(r, http.MethodGet, "/api/admin/ping", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodGet, "/api/admin/ping", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(r, http.MethodGet, "/api/admin/ping", "", map[string]string{"Authorization": "bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code, "scheme is case-insensitive")

	w = call(r, http.MethodGet, "/api/admin/ping", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodGet, "/api/admin/ping?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query tokens only for websocket upgrades")

	w = call(r, http.MethodGet, "/api/admin/ping?token="+token, "", map[string]string{
		"Connection": "Upgrade", "Upgrade": "websocket",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// a validly signed token the store never issued
	raw, _, err := testTokens().Sign()
	require.NoError(t, err)
	w = call(r, http.MethodGet, "/api/admin/ping", "", map[string]string{"Authorization": "Bearer " + raw})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	r, _ := newAuthRouter(t, NewMemoryStore())
	token := login(t, r)
	auth := map[string]string{"Authorization": "Bearer " + token}

	w := call(r, http.MethodPost, "/api/logout", "", auth)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(r, http.MethodGet, "/api/admin/ping", "", auth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodPost, "/api/logout", "", auth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_StoreDown(t *testing.T) {
	store := &brokenStore{NewMemoryStore()}
	r, _ := newAuthRouter(t, store)
	token := login(t, r)

	w := call(r, http.MethodGet, "/api/admin/ping", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
