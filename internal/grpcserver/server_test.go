package grpcserver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

func status(t *testing.T, s *Server, name string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: name})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestProbe_Serving(t *testing.T) {
	s := NewServer(fakeDB{}, t.TempDir(), nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ServiceName))
}

func TestProbe_DatabaseDown(t *testing.T) {
	s := NewServer(fakeDB{err: errors.New("closed")}, t.TempDir(), nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ServiceName))
}

func TestProbe_MissingDataDir(t *testing.T) {
	s := NewServer(fakeDB{}, filepath.Join(t.TempDir(), "nope"), nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Probe(context.Background()))
}

func TestWatch_ShutdownOnCancel(t *testing.T) {
	s := NewServer(fakeDB{}, t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, 0)
		close(done)
	}()
	cancel()
	<-done
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ""))
}
