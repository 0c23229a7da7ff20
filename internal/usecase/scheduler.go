package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	applogger "FinSight/pkg/logger"
)

// PriceSource resolves the latest known price per ticker. The realtime
// pipeline implements it from the quote stream.
type PriceSource interface {
	LastPrices(tickers []string) map[string]float64
}

// Scheduler drives the two background loops: periodic retraining of
// stale model artifacts and periodic alert evaluation. A failing pass
// is logged and the loop keeps ticking.
type Scheduler struct {
	engine  *PredictionUseCase
	modelsC *ModelCache
	alerts  *AlertRegistry
	prices  PriceSource
	clock   domsvc.Clock
	metrics domrepo.Metrics
	l       *applogger.Logger

	retrainScanEvery time.Duration
	alertEvery       time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

// WithRetrainScanInterval sets how often the stale-artifact scan runs.
func WithRetrainScanInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.retrainScanEvery = d }
}

// WithAlertInterval sets the alert evaluation cadence.
func WithAlertInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.alertEvery = d }
}

// WithSchedulerClock injects a clock. Test hook.
func WithSchedulerClock(clock domsvc.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSchedulerMetrics injects a metrics recorder.
func WithSchedulerMetrics(m domrepo.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithSchedulerLogger injects a structured logger.
func WithSchedulerLogger(l *applogger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.l = l }
}

func NewScheduler(
	engine *PredictionUseCase,
	modelCache *ModelCache,
	alerts *AlertRegistry,
	prices PriceSource,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		engine:           engine,
		modelsC:          modelCache,
		alerts:           alerts,
		prices:           prices,
		clock:            domsvc.SystemClock{},
		retrainScanEvery: time.Hour,
		alertEvery:       30 * time.Second,
		stop:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches both loops. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(2)
		go s.retrainLoop(ctx)
		go s.alertLoop(ctx)
		if s.l != nil {
			s.l.Info("scheduler started",
				applogger.Duration("retrain_scan", s.retrainScanEvery),
				applogger.Duration("alert_interval", s.alertEvery),
			)
		}
	})
}

// Stop halts both loops and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) retrainLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.retrainScanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.RetrainPass(ctx)
		}
	}
}

func (s *Scheduler) alertLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.alertEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.AlertPass()
		}
	}
}

// RetrainPass recomputes every ticker with at least one stale artifact.
// Recompute goes through the model cache, so a scheduled retrain and a
// user-triggered one for the same key collapse into a single training.
func (s *Scheduler) RetrainPass(ctx context.Context) {
	stale := s.modelsC.StaleKeys()
	if len(stale) == 0 {
		return
	}
	tickers := make(map[string]struct{}, len(stale))
	for _, key := range stale {
		tickers[key.Ticker] = struct{}{}
	}
	for ticker := range tickers {
		if _, err := s.engine.Recompute(ctx, ticker); err != nil {
			if s.metrics != nil {
				s.metrics.RecordError("retrain")
			}
			if s.l != nil {
				s.l.Warn("scheduled retrain pass failed",
					applogger.String("ticker", ticker),
					applogger.Error(err),
				)
			}
		}
	}
}

// AlertPass evaluates active alert rules against the latest prices.
func (s *Scheduler) AlertPass() {
	tickers := s.alerts.Tickers()
	if len(tickers) == 0 || s.prices == nil {
		return
	}
	prices := s.prices.LastPrices(tickers)
	if s.metrics != nil {
		for ticker, price := range prices {
			s.metrics.RecordLastPrice(ticker, price)
		}
	}
	s.alerts.EvaluateAll(prices)
}
