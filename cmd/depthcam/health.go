package main

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/depthcam/internal/camera"
)

// healthService is the gRPC service name reported for the capture loop.
const healthService = "depthcam.Capture"

// healthServer publishes capture state over the standard gRPC health
// protocol: SERVING while the capture goroutine runs, NOT_SERVING otherwise.
type healthServer struct {
	grpc   *grpc.Server
	health *health.Server
}

func newHealthServer() *healthServer {
	hs := health.NewServer()
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &healthServer{grpc: srv, health: hs}
}

func (h *healthServer) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(healthService, status)
	h.health.SetServingStatus("", status)
}

// watch mirrors cam's state into the health status until ctx is done.
func (h *healthServer) watch(ctx context.Context, cam *camera.Camera, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		h.setServing(cam.IsRunning())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *healthServer) serve(lis net.Listener) {
	if err := h.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		log.Printf("gRPC server: %v", err)
	}
}

func (h *healthServer) stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
