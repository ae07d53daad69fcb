package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Server hosts the HTTP and gRPC endpoints of a Service.
type Server struct {
	svc      *Service
	httpAddr string
	grpcAddr string
	log      *slog.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewServer creates a Server. An empty grpcAddr disables gRPC.
func NewServer(svc *Service, httpAddr, grpcAddr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gs := grpc.NewServer()
	NewGRPCServer(svc).RegisterGRPC(gs)
	return &Server{
		svc:      svc,
		httpAddr: httpAddr,
		grpcAddr: grpcAddr,
		log:      log.With("component", "server"),
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpcServer: gs,
	}
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs. Cancelling ctx shuts both
// listeners down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	var grpcLn net.Listener
	if s.grpcAddr != "" {
		grpcLn, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves on pre-bound listeners. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	if grpcLn != nil {
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	err := s.httpServer.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	return err
}
