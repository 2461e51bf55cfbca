package api

import (
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ClassifierService is the gRPC health service name for the classifier.
const ClassifierService = "classifier"

// HealthChecker reports the classifier's readiness.
type HealthChecker interface {
	Health(ctx context.Context) model.ServerHealth
}

// HealthReporter periodically checks the classifier and publishes the
// result through the standard gRPC health service and a metric.
type HealthReporter struct {
	checker  HealthChecker
	interval time.Duration
	metrics  *metrics.Metrics
	server   *health.Server
	grpc     *grpc.Server
}

// NewHealthReporter creates a reporter. m may be nil.
func NewHealthReporter(checker HealthChecker, interval time.Duration, m *metrics.Metrics) *HealthReporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus(ClassifierService, healthpb.HealthCheckResponse_UNKNOWN)
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &HealthReporter{checker: checker, interval: interval, metrics: m, server: hs, grpc: gs}
}

// HealthServer exposes the underlying gRPC health server.
func (r *HealthReporter) HealthServer() *health.Server { return r.server }

// CheckOnce queries the classifier and updates the serving status.
func (r *HealthReporter) CheckOnce(ctx context.Context) model.ServerHealth {
	h := r.checker.Health(ctx)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.IsHealthy() {
		status = healthpb.HealthCheckResponse_SERVING
	} else {
		log.Warn().Str("status", h.Status).Str("error", h.ErrorMessage).Msg("Classifier is not healthy")
	}
	r.server.SetServingStatus(ClassifierService, status)
	r.metrics.SetClassifierHealthy(h.IsHealthy())
	return h
}

// Run checks the classifier every interval until ctx is done.
func (r *HealthReporter) Run(ctx context.Context) {
	r.CheckOnce(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckOnce(ctx)
		}
	}
}

// Serve exposes the health service on lis. It blocks until Stop.
func (r *HealthReporter) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return r.grpc.Serve(lis)
}

// Stop marks every service as not serving and stops the gRPC server.
func (r *HealthReporter) Stop() {
	r.server.Shutdown()
	r.grpc.GracefulStop()
}
