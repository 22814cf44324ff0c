package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/LeonardoBeccarini/smartcrop/internal/services/event"
)

// SimulationService is the health-checked service name.
const SimulationService = "smartcrop.simulation"

// HealthServer exposes grpc.health.v1. The simulation service is SERVING
// while the clock ticks and NOT_SERVING while paused; the overall ("")
// status is SERVING for as long as the process is up.
//
// State events keep Watch streams current. When a running source is set with
// Follow, Check reads it directly and Run resyncs from it every second, so a
// state event lost by the dispatcher cannot leave the status stale.
type HealthServer struct {
	addr   string
	hs     *health.Server
	logger *zap.Logger

	mu      sync.RWMutex
	running func() bool
}

// healthService answers Check from the live running source.
type healthService struct {
	*health.Server
	h *HealthServer
}

func (s healthService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.h.refresh()
	return s.Server.Check(ctx, req)
}

func NewHealthServer(addr string, running bool, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthServer{
		addr:   addr,
		hs:     health.NewServer(),
		logger: logger.With(zap.String("component", "grpc-health")),
	}
	h.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.setRunning(running)
	return h
}

func (h *HealthServer) setRunning(running bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus(SimulationService, st)
}

// Follow makes running the source of truth for the simulation status.
func (h *HealthServer) Follow(running func() bool) {
	h.mu.Lock()
	h.running = running
	h.mu.Unlock()
	h.refresh()
}

func (h *HealthServer) refresh() {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if running != nil {
		h.setRunning(running())
	}
}

func (h *HealthServer) Name() string { return "grpc-health" }

// Handle follows state changes; other events are ignored.
func (h *HealthServer) Handle(ev event.Event) error {
	if ev.Kind == event.KindState {
		h.setRunning(ev.State.Running)
	}
	return nil
}

// Check answers a health probe in-process.
func (h *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthService{h.hs, h}.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Run serves until ctx is done.
func (h *HealthServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", h.addr, err)
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, healthService{h.hs, h})
	reflection.Register(srv)

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("listening", zap.String("addr", h.addr))
		errCh <- srv.Serve(lis)
	}()

	resync := time.NewTicker(time.Second)
	defer resync.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-resync.C:
			h.refresh()
		case <-ctx.Done():
			h.hs.Shutdown()
			srv.GracefulStop()
			return nil
		}
	}
}
