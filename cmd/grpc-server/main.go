package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"configurateur/internal/config"
	"configurateur/internal/grpcserver"
	"configurateur/internal/logging"
	"configurateur/pkg/database"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("load config", zap.Error(err))
	}
	log := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(database.Config{Path: cfg.KPIDBPath})
	if err != nil {
		log.Fatal("open kpi database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("grpc listen failed", zap.Error(err))
	}

	svc := grpcserver.NewServer(db, cfg.DataDir, log.Named("health"))
	grpcServer := grpc.NewServer()
	svc.Register(grpcServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go svc.Watch(ctx, 15*time.Second)

	go func() {
		<-ctx.Done()
		log.Info("shutting down gRPC server")
		grpcServer.GracefulStop()
	}()

	log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
	if err := grpcServer.Serve(listener); err != nil {
		log.Error("grpc server stopped", zap.Error(err))
		os.Exit(1)
	}
}
