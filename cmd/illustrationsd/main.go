package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/export"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/illustration-analyzer/internal/server"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "illustrationsd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := common.NewZapLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := common.NewSlogLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("config.loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.New()
	proc, completer, err := pipeline.Build(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	provider := common.ProviderNone
	if completer != nil {
		provider = completer.Name()
	}
	batch := pipeline.NewBatch(proc, cfg.Pipeline.Concurrency, logger, metrics)

	h := server.NewHTTPHandler(server.HTTPConfig{
		MaxUploadMB:    cfg.Server.MaxUploadMB,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Provider:       provider,
	}, proc, batch, export.NewService(logger), metrics, logger, zl)
	defer h.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// uploads are analyzed in the request, so the write deadline covers a full batch
		WriteTimeout: cfg.Pipeline.DocumentTimeout + time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	grpcSrv, healthSrv := server.NewGRPCServer(proc, zl, metrics)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr), zap.String("provider", provider))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		zl.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		// reports NOT_SERVING to health checkers before connections drain
		healthSrv.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			zl.Warn("http shutdown", zap.Error(err))
		}

		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			zl.Warn("grpc graceful stop timed out; forcing")
			grpcSrv.Stop()
		}
		return nil
	})

	err = g.Wait()
	zl.Info("stopped")
	return err
}
