package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RateGate/internal/domain/repository"
	"RateGate/internal/service/cache"
	"RateGate/internal/usecase"
	"RateGate/pkg/config"
	xhttp "RateGate/pkg/http"
	applogger "RateGate/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	recorder   *usecase.AdmissionRecorder
	publisher  repository.EventPublisher
	cache      cache.BytesCache
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	rec *usecase.AdmissionRecorder,
	pub repository.EventPublisher,
	c cache.BytesCache,
) *App {
	return &App{
		cfg:        cfg,
		logger:     l,
		httpServer: srv,
		recorder:   rec,
		publisher:  pub,
		cache:      c,
	}
}

// Run starts the application and blocks until interrupted or the HTTP
// server fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	a.recorder.Start(context.Background())

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		a.shutdown()
		return err
	}
	a.logger.Info("rategate started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("buckets", bucketNames(a.cfg)),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		a.logger.Error("http server failed", applogger.Error(err))
		runErr = err
	}

	a.shutdown()
	return runErr
}

// shutdown stops the listener first so no new admissions are recorded,
// then drains the recorder before closing the publisher it writes to.
// Each stage gets its own shutdown_timeout budget.
func (a *App) shutdown() {
	a.logger.Info("shutting down...")

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancelHTTP()
	if err := a.httpServer.Stop(httpCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	// Shutdown returns only after the worker exits, even on timeout
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancelDrain()
	if err := a.recorder.Shutdown(drainCtx); err != nil {
		a.logger.Warn("admission recorder stop error",
			applogger.Int("pending", a.recorder.Pending()),
			applogger.Error(err))
	}

	// flush aggregated error logs while the producer is still open
	a.logger.RemoveCollector()

	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("event publisher close error", applogger.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close error", applogger.Error(err))
	}

	a.logger.Info("shutdown complete")
}

func bucketNames(cfg *config.Config) []string {
	buckets := cfg.Buckets()
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, fmt.Sprintf("%s(%d/%d per %s, %s)", b.Name, b.Capacity, b.RefillRate, b.RefillPeriod, b.Mode))
	}
	return names
}
