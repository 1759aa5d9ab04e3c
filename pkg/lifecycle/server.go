// Package lifecycle pkg/lifecycle/server.go runs a service next to its HTTP
// status server and gRPC health server until a signal or error stops it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfreeman451/statustracker/pkg/grpc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	MaxRecvSize       = 4 * 1024 * 1024 // 4MB
	MaxSendSize       = 4 * 1024 * 1024 // 4MB
	ShutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Service defines the interface that all services must implement.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for creating a server.
type ServerOptions struct {
	ServiceName string
	Service     Service
	// HTTPAddr and HTTPHandler enable the status server when both are set.
	HTTPAddr    string
	HTTPHandler http.Handler
	// GRPCAddr enables the gRPC health server when set.
	GRPCAddr        string
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// RunServer starts a service with the provided options and handles lifecycle.
// It returns nil after a clean shutdown triggered by a signal or by ctx.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Starting service", zap.String("service", opts.ServiceName))

	errChan := make(chan error, 3)

	grpcServer, err := startGRPC(opts, logger, errChan)
	if err != nil {
		return err
	}

	httpServer, err := startHTTP(opts, logger, errChan)
	if err != nil {
		if grpcServer != nil {
			grpcServer.Stop(context.Background())
		}

		return err
	}

	if err := opts.Service.Start(ctx); err != nil {
		stopServers(context.Background(), logger, grpcServer, httpServer)

		return fmt.Errorf("failed to start service: %w", err)
	}

	if grpcServer != nil {
		grpcServer.SetServingStatus(opts.ServiceName, true)
	}

	return handleShutdown(ctx, cancel, opts, logger, grpcServer, httpServer, errChan)
}

func startGRPC(opts *ServerOptions, logger *zap.Logger, errChan chan<- error) (*grpc.Server, error) {
	if opts.GRPCAddr == "" {
		return nil, nil
	}

	lis, err := net.Listen("tcp", opts.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	srv := grpc.NewServer(opts.GRPCAddr, logger,
		grpc.WithMaxRecvSize(MaxRecvSize),
		grpc.WithMaxSendSize(MaxSendSize),
	)
	srv.SetServingStatus(opts.ServiceName, false)

	go func() {
		if err := srv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	return srv, nil
}

func startHTTP(opts *ServerOptions, logger *zap.Logger, errChan chan<- error) (*http.Server, error) {
	if opts.HTTPAddr == "" || opts.HTTPHandler == nil {
		return nil, nil
	}

	lis, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	srv := &http.Server{
		Addr:              opts.HTTPAddr,
		Handler:           opts.HTTPHandler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))

		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return srv, nil
}

func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	opts *ServerOptions,
	logger *zap.Logger,
	grpcServer *grpc.Server,
	httpServer *http.Server,
	errChan chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigChan)

	var runErr error

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, initiating shutdown", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Received error, initiating shutdown", zap.Error(err))

		runErr = fmt.Errorf("service error: %w", err)
	case <-ctx.Done():
		logger.Info("Context canceled, initiating shutdown")
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = ShutdownTimeout
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	// Cancel main context so pending waits return.
	cancel()

	if grpcServer != nil {
		grpcServer.SetServingStatus(opts.ServiceName, false)
	}

	if err := opts.Service.Stop(shutdownCtx); err != nil {
		logger.Error("Error during service shutdown", zap.Error(err))

		runErr = multierr.Append(runErr, fmt.Errorf("shutdown error: %w", err))
	}

	stopServers(shutdownCtx, logger, grpcServer, httpServer)

	return runErr
}

func stopServers(ctx context.Context, logger *zap.Logger, grpcServer *grpc.Server, httpServer *http.Server) {
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("HTTP server shutdown", zap.Error(err))
		}
	}

	if grpcServer != nil {
		grpcServer.Stop(ctx)
	}
}
