// Package grpcserver serves the grpc.health.v1 probe for orchestrators that
// speak gRPC health checking.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/jobsmv/internal/health"
)

// ServiceName is the health service name reported alongside the overall "" status.
const ServiceName = "jobsmv.v1.Auth"

// Probe mirrors readiness checks into a gRPC health server.
type Probe struct {
	hs      *grpchealth.Server
	checker *health.Checker
	log     *zap.Logger
	last    healthpb.HealthCheckResponse_ServingStatus
}

// NewProbe constructs a Probe. Status starts as NOT_SERVING until the first refresh.
func NewProbe(checker *health.Checker, log *zap.Logger) *Probe {
	if log == nil {
		log = zap.NewNop()
	}
	hs := grpchealth.NewServer()
	p := &Probe{hs: hs, checker: checker, log: log, last: healthpb.HealthCheckResponse_NOT_SERVING}
	p.set(p.last)
	return p
}

// Server returns a gRPC server with the health service and interceptors registered.
func (p *Probe) Server() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(p.log),
		LoggingUnary(p.log),
	))
	healthpb.RegisterHealthServer(srv, p.hs)
	return srv
}

// Refresh runs the checks once and publishes the result.
func (p *Probe) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for name, err := range p.checker.Run(ctx) {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		p.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
	}
	if st != p.last {
		p.log.Info("health status changed", zap.String("status", st.String()))
		p.last = st
	}
	p.set(st)
	return st
}

// Run refreshes immediately and then every interval until ctx is done,
// after which every service reports NOT_SERVING.
func (p *Probe) Run(ctx context.Context, every time.Duration) {
	p.Refresh(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.hs.Shutdown()
			return
		case <-t.C:
			p.Refresh(ctx)
		}
	}
}

func (p *Probe) set(st healthpb.HealthCheckResponse_ServingStatus) {
	p.hs.SetServingStatus("", st)
	p.hs.SetServingStatus(ServiceName, st)
}
