package grpcserver

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry for the configurator backend; the empty
// name reports the same status for the whole server.
const ServiceName = "configurateur.Backend"

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes grpc.health.v1 backed by the KPI store and the data root.
type Server struct {
	Health  *health.Server
	DB      Pinger
	DataDir string
	log     *zap.Logger
}

func NewServer(db Pinger, dataDir string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Health: health.NewServer(), DB: db, DataDir: dataDir, log: log}
}

// Register mounts the health service on g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.Health)
}

// Probe checks dependencies once and publishes the resulting status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.check(ctx); err != nil {
		s.log.Warn("health probe failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.Health.SetServingStatus("", st)
	s.Health.SetServingStatus(ServiceName, st)
	return st
}

func (s *Server) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		return err
	}
	st, err := os.Stat(s.DataDir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return &os.PathError{Op: "stat", Path: s.DataDir, Err: os.ErrInvalid}
	}
	return nil
}

// Watch probes every interval until ctx ends, then marks everything as
// not serving.
func (s *Server) Watch(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	s.Probe(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Health.Shutdown()
			return
		case <-t.C:
			s.Probe(ctx)
		}
	}
}
