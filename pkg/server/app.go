package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "MarketScan/internal/domain/repository"
	"MarketScan/internal/usecase"
	pkgch "MarketScan/pkg/clickhouse"
	"MarketScan/pkg/config"
	xhttp "MarketScan/pkg/http"
	applogger "MarketScan/pkg/logger"

	"github.com/robfig/cron/v3"
)

// App encapsulates the application lifecycle: the HTTP surface, the
// scheduled scan pipeline, and infrastructure teardown.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	pipeline *usecase.ScanPipeline
	handler  xhttp.Handler
	pub      domrepo.Publisher
	chClient *pkgch.Client

	httpServer *xhttp.Server
	cron       *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	pipeline *usecase.ScanPipeline,
	handler xhttp.Handler,
	pub domrepo.Publisher,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		handler:  handler,
		pub:      pub,
		chClient: chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(a.logger),
	)
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.cfg.Ingest.Schedule != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(a.cfg.Ingest.Schedule, func() { a.runScan(ctx) }); err != nil {
			a.logger.Error("invalid scan schedule", applogger.String("schedule", a.cfg.Ingest.Schedule), applogger.Error(err))
			return err
		}
		a.cron.Start()
		a.logger.Info("scan scheduled", applogger.String("schedule", a.cfg.Ingest.Schedule))
	}

	if a.cfg.Ingest.RunOnStart {
		go a.runScan(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// runScan executes one pipeline run. Overlap is prevented inside the
// pipeline's HTTP trigger; scheduled runs rely on the schedule spacing.
func (a *App) runScan(ctx context.Context) {
	start := time.Now()
	run, err := a.pipeline.Run(ctx, time.Time{})
	if err != nil {
		a.logger.Error("scheduled scan failed", applogger.Error(err))
		return
	}
	a.logger.Info("scheduled scan finished",
		applogger.Int("ranked", len(run.Vectors)),
		applogger.Duration("took", time.Since(start)),
	)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(a.cfg.Server.ShutdownTimeout):
			a.logger.Warn("cron jobs still running at shutdown deadline")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	// Flush aggregated error logs while the producer is still open.
	a.logger.RemoveCollector()

	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
