package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FinSight/internal/domain/repository"
	"FinSight/internal/middleware"
	svccache "FinSight/internal/service/cache"
	"FinSight/internal/usecase"
	pkgch "FinSight/pkg/clickhouse"
	"FinSight/pkg/config"
	xhttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"
)

// App encapsulates the entire application lifecycle: the quote
// pipeline, the retrain/alert scheduler, and the HTTP API.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	pipeline   *middleware.QuotePipeline
	scheduler  *usecase.Scheduler
	cache      *svccache.PredictionCache
	history    domrepo.HistoryStore
	publisher  domrepo.EventPublisher
	chClient   *pkgch.Client
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *middleware.QuotePipeline,
	scheduler *usecase.Scheduler,
	cache *svccache.PredictionCache,
	history domrepo.HistoryStore,
	publisher domrepo.EventPublisher,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		pipeline:  pipeline,
		scheduler: scheduler,
		cache:     cache,
		history:   history,
		publisher: publisher,
		chClient:  chClient,
		handler:   handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.history != nil {
		if err := a.history.Init(ctx); err != nil {
			a.l.Warn("history schema init failed, persistence disabled", applogger.Error(err))
		}
	}

	// A dead quote feed degrades alerts but must not block serving
	// predictions, so pipeline startup failure is not fatal.
	if a.pipeline != nil {
		if err := a.pipeline.Start(ctx); err != nil {
			a.l.Warn("quote pipeline start failed", applogger.Error(err))
		} else {
			a.l.Info("quote pipeline started", applogger.Strings("tickers", a.cfg.Provider.Tickers))
		}
	}

	a.scheduler.Start(ctx)

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.l, 2*time.Second),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("engine serving", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.scheduler.Stop()
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.cache != nil {
		a.cache.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.l.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.l.Warn("history close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
