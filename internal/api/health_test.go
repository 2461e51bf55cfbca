package api

import (
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func servingStatus(t *testing.T, r *HealthReporter) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.HealthServer().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ClassifierService})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporter_CheckOnce(t *testing.T) {
	m := metrics.New()
	checker := &fakeHealth{health: model.ServerHealth{Status: "healthy"}}
	r := NewHealthReporter(checker, time.Minute, m)
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, servingStatus(t, r))

	r.CheckOnce(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, r))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClassifierHealthy))

	checker.health = model.ServerHealth{Status: "degraded", EncoderLoaded: true, FeaturesLoaded: true, ModelLoaded: true, ScalerLoaded: true}
	r.CheckOnce(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, r))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ClassifierHealthy))
}

func TestHealthReporter_ServeGRPC(t *testing.T) {
	r := NewHealthReporter(fakeHealth{health: model.ServerHealth{Status: "healthy"}}, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go r.Serve(lis)
	defer r.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ClassifierService})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)
}
