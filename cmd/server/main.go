package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/PaulinaPacula189/course-reservation/internal/adapter/handler"
	"github.com/PaulinaPacula189/course-reservation/internal/app"
	"github.com/PaulinaPacula189/course-reservation/internal/config"
	"github.com/PaulinaPacula189/course-reservation/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// run serves until ctx is done or a transport fails. Everything it acquires is
// released before it returns.
func run(ctx context.Context, cfg config.FileConfig) error {
	// bind before connecting to the store so a taken port leaves nothing open
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcLis = lis
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		if grpcLis != nil {
			grpcLis.Close()
		}
		return fmt.Errorf("listen http: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		httpLis.Close()
		if grpcLis != nil {
			grpcLis.Close()
		}
		return fmt.Errorf("init app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("close connections", "err", err)
		}
		slog.Info("connections closed")
	}()
	a.Notifier.Start(cfg.NotifierWorkers)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor))
	handler.RegisterReservationServiceServer(grpcServer, a.GRPCHandler())

	httpServer := &http.Server{
		Handler:      a.HTTPHandler().Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcLis != nil {
		g.Go(func() error {
			slog.Info("gRPC server listening", "addr", grpcLis.Addr().String())
			return grpcServer.Serve(grpcLis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "err", err)
		}
		slog.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		slog.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Transports are down, so nothing enqueues any more.
	a.Notifier.Close()
	slog.Info("notifier drained")
	return err
}
