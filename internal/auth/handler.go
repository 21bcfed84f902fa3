package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	Tokens TokenService
	Store  TokenStore
	Log    *zap.Logger

	passwordHash []byte
}

// NewHandler hashes the admin password once; login compares against the hash.
func NewHandler(password string, tokens TokenService, store TokenStore, log *zap.Logger) (*Handler, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Tokens: tokens, Store: store, Log: log, passwordHash: hash}, nil
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.login)
	rg.POST("/logout", h.RequireAuth(), h.logout)
}

func (h *Handler) RequireAuth() gin.HandlerFunc {
	return AuthMiddleware(h.Tokens, h.Store)
}

type loginReq struct {
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		h.Log.Warn("admin login refused", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": "bad password"})
		return
	}

	token, claims, err := h.Tokens.Sign()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}
	if err := h.Store.Save(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.Log.Error("token store save failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token store unavailable"})
		return
	}

	h.Log.Info("admin logged in", zap.String("ip", c.ClientIP()), zap.String("jti", claims.ID))
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.Tokens.Duration.Seconds()),
	})
}

func (h *Handler) logout(c *gin.Context) {
	claims := MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.Store.Revoke(c.Request.Context(), claims.ID); err != nil {
		h.Log.Error("token revoke failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}
