package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/backend"
	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/screen"
	"github.com/tshop/admin/internal/session"
	"github.com/tshop/admin/internal/transport"
)

func serve(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "tshop-admin", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return err
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	screens, err := loadScreens(cfg, logger, metrics)
	if err != nil {
		return err
	}
	registry := screens.registry

	backends := backend.NewRegistry(cfg.Services,
		backend.WithLogger(logger),
		backend.WithMetrics(metrics),
	)
	if err := checkServices(registry, backends); err != nil {
		logger.Error("screen bound to an unknown service", zap.Error(err))
		return err
	}

	sessions := session.NewMemoryStore(cfg.Sessions.TTL,
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithMetrics(metrics),
	)

	readinessChecks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.ScreenCount() > 0 },
		Backend:           backends,
		Sessions:          sessions,
	}
	if screens.index != nil {
		readinessChecks.OpenAPILoaded = screens.openAPILoaded
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Definitions: registry,
		Backends: transport.BackendResolverFunc(func(serviceID, basePath string) (screen.Backend, error) {
			return backends.Client(serviceID, basePath)
		}),
		Sessions:  sessions,
		Readiness: readinessChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go session.RunSweeper(bgCtx, sessions, cfg.Sessions.TTL, cfg.Sessions.SweepInterval, logger)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("screens", registry.ScreenCount()),
		zap.String("checksum", registry.Checksum()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight flows.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete", zap.Int("open_sessions", sessions.Len()))
	return nil
}
