// Package admin exposes the node's out-of-band surfaces: a gRPC health
// service with reflection, and an HTTP listener serving /metrics and
// /healthz. Neither surface touches node state; both only report the
// serving flag the control loop publishes through SetServing.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"gossipnode/internal/telemetry"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "gossipnode"

// Server holds the admin listeners.
type Server struct {
	logger  *zap.Logger
	metrics *telemetry.Metrics
	serving atomic.Bool

	health     *health.Server
	grpcServer *grpc.Server
	httpServer *http.Server

	mu    sync.Mutex
	addrs map[string]net.Addr
	wg    sync.WaitGroup
}

// New creates an admin server that reports not-serving until told otherwise.
func New(metrics *telemetry.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:  logger,
		metrics: metrics,
		health:  health.NewServer(),
		addrs:   make(map[string]net.Addr),
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing publishes the node's readiness to both surfaces.
func (s *Server) SetServing(serving bool) {
	s.serving.Store(serving)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serving reports the last value passed to SetServing.
func (s *Server) Serving() bool {
	return s.serving.Load()
}

// Handler returns the HTTP mux with /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if !s.serving.Load() {
		http.Error(w, "not serving", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// ServeGRPC listens on addr and serves the health and reflection services
// in the background.
func (s *Server) ServeGRPC(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	s.setAddr("grpc", lis.Addr())

	s.logger.Info("admin grpc listening", zap.Stringer("addr", lis.Addr()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error("admin grpc server failed", zap.Error(err))
		}
	}()
	return nil
}

// ServeHTTP listens on addr and serves Handler in the background.
func (s *Server) ServeHTTP(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setAddr("http", lis.Addr())

	s.logger.Info("admin http listening", zap.Stringer("addr", lis.Addr()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin http server failed", zap.Error(err))
		}
	}()
	return nil
}

// GRPCAddr returns the bound gRPC address, or nil if not listening.
func (s *Server) GRPCAddr() net.Addr { return s.addr("grpc") }

// HTTPAddr returns the bound HTTP address, or nil if not listening.
func (s *Server) HTTPAddr() net.Addr { return s.addr("http") }

// Shutdown stops both listeners. The gRPC server drains gracefully; if ctx
// expires first it is stopped hard.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetServing(false)
	s.health.Shutdown()

	var err error
	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Shutdown(ctx))
	}
	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpcServer.Stop()
			err = multierr.Append(err, fmt.Errorf("grpc graceful stop: %w", ctx.Err()))
		}
	}
	s.wg.Wait()
	return err
}

func (s *Server) setAddr(name string, addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[name] = addr
}

func (s *Server) addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[name]
}
