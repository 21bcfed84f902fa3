package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"configurateur/internal/auth"
	"configurateur/internal/catalog"
	"configurateur/internal/config"
	"configurateur/internal/datasheet"
	"configurateur/internal/export"
	"configurateur/internal/kpi"
	"configurateur/internal/live"
	"configurateur/internal/logging"
	"configurateur/internal/metrics"
	"configurateur/internal/web"
	"configurateur/pkg/database"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("load config", zap.Error(err))
	}
	log := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	if cfg.UsesDefaultPassword() {
		log.Warn("admin password is the development default; set CONFIGURATEUR_AUTH_ADMIN_PASSWORD")
	}

	db, err := database.Open(database.Config{Path: cfg.KPIDBPath})
	if err != nil {
		log.Fatal("open kpi database", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	tokenStore, closeStore, err := newTokenStore(cfg.Auth, log)
	if err != nil {
		log.Fatal("token store", zap.Error(err))
	}
	defer closeStore()

	m := metrics.New()
	hub := live.NewHub(log.Named("live"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(log.Named("http"), "/health"), m.Middleware(), web.CORS(), web.Gzip())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "data": cfg.DataDir, "frontend": cfg.FrontendDir})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "db_error": err.Error(), "ws_clients": hub.Count()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "db": "ok", "ws_clients": hub.Count()})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api")

	// Auth
	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.TokenTTL,
	}
	authHandler, err := auth.NewHandler(cfg.Auth.AdminPassword, tokens, tokenStore, log.Named("auth"))
	if err != nil {
		log.Fatal("auth handler", zap.Error(err))
	}
	authHandler.RegisterRoutes(api)
	requireAuth := authHandler.RequireAuth()

	api.GET("/admin/ws", requireAuth, live.WSHandler(hub))

	// Catalogs
	index := catalog.NewIndex(cfg.DataDir, catalog.WithLogger(log.Named("index")), catalog.WithMetrics(m))
	locator := datasheet.NewLocator(cfg.DatasheetsDir, catalog.Names())
	store := catalog.NewStore(cfg.DataDir, log.Named("catalog"))
	catalog.NewHandler(store, index, locator, hub, m, log.Named("catalog")).RegisterRoutes(api, requireAuth)

	// KPI
	kpi.NewHandler(kpi.NewRepo(db), hub, m, log.Named("kpi")).RegisterRoutes(api, requireAuth)

	// Export
	exporter := export.NewExporter(index, locator, export.Options{
		DatasheetsDir:    cfg.DatasheetsDir,
		MinDocumentBytes: cfg.Export.MinDocumentBytes,
		MaxNameLength:    cfg.Export.MaxNameLength,
	}, m, log.Named("export"))
	export.NewHandler(exporter, export.Paths{
		Frontend:   cfg.FrontendDir,
		Data:       cfg.DataDir,
		Datasheets: cfg.DatasheetsDir,
	}, cfg.Export.MaxBodyBytes, hub, log.Named("export")).RegisterRoutes(router.Group("/export"))

	web.Register(router, web.Config{
		DataDir:     cfg.DataDir,
		FrontendDir: cfg.FrontendDir,
		PublicDir:   filepath.Join(filepath.Dir(cfg.FrontendDir), "public"),
	}, log.Named("web"))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if cfg.WatchCatalogs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := catalog.NewWatcher(cfg.DataDir, hub, log.Named("watcher"))
			if err := w.Run(ctx); err != nil {
				// the API still works without live reload
				log.Warn("catalog watcher stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP API server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("data", cfg.DataDir),
			zap.String("frontend", cfg.FrontendDir),
			zap.String("datasheets", cfg.DatasheetsDir))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down")
	stop()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}

	wg.Wait()
	log.Info("server stopped")
}

func newTokenStore(cfg config.AuthConfig, log *zap.Logger) (auth.TokenStore, func(), error) {
	if cfg.TokenStore != "redis" {
		return auth.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	log.Info("tokens stored in redis", zap.String("addr", cfg.RedisAddr))
	return auth.NewRedisStore(rdb, ""), func() { _ = rdb.Close() }, nil
}
