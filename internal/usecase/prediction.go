package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	svccache "FinSight/internal/service/cache"
	"FinSight/internal/services/ensemble"
	"FinSight/internal/services/features"
	pkgcache "FinSight/pkg/cache"
	applogger "FinSight/pkg/logger"
)

// PredictionUseCase produces ensemble forecasts on demand. The flow is
// cache check, bar fetch, feature engineering once per request, then the
// three model variants in parallel over the same feature snapshot, then
// the confidence-weighted combine.
type PredictionUseCase struct {
	provider  domsvc.BarProvider
	modelsC   *ModelCache
	combiner  *ensemble.Combiner
	cache     *svccache.PredictionCache
	charts    *svccache.TTLCache[models.ChartSeries]
	publisher domrepo.EventPublisher
	history   domrepo.HistoryStore
	metrics   domrepo.Metrics
	clock     domsvc.Clock
	l         *applogger.Logger

	lookbackDays int
	timeout      time.Duration
}

type PredictionOption func(*PredictionUseCase)

// WithEventPublisher wires the predictionRefreshed fan-out.
func WithEventPublisher(p domrepo.EventPublisher) PredictionOption {
	return func(uc *PredictionUseCase) { uc.publisher = p }
}

// WithHistoryStore wires the audit sink for computed results.
func WithHistoryStore(h domrepo.HistoryStore) PredictionOption {
	return func(uc *PredictionUseCase) { uc.history = h }
}

// WithMetrics wires the metrics recorder.
func WithMetrics(m domrepo.Metrics) PredictionOption {
	return func(uc *PredictionUseCase) { uc.metrics = m }
}

// WithClock injects a clock. Test hook.
func WithClock(clock domsvc.Clock) PredictionOption {
	return func(uc *PredictionUseCase) { uc.clock = clock }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) PredictionOption {
	return func(uc *PredictionUseCase) { uc.l = l }
}

// WithLookbackDays sets the default history window in days.
func WithLookbackDays(days int) PredictionOption {
	return func(uc *PredictionUseCase) { uc.lookbackDays = domrepo.ClampLookback(days) }
}

// WithRequestTimeout bounds one prediction request end to end.
func WithRequestTimeout(d time.Duration) PredictionOption {
	return func(uc *PredictionUseCase) { uc.timeout = d }
}

// WithChartTTL overrides the chart snapshot TTL.
func WithChartTTL(d time.Duration) PredictionOption {
	return func(uc *PredictionUseCase) {
		uc.charts = svccache.NewTTLCache[models.ChartSeries](d)
	}
}

func NewPredictionUseCase(
	provider domsvc.BarProvider,
	modelCache *ModelCache,
	combiner *ensemble.Combiner,
	cache *svccache.PredictionCache,
	opts ...PredictionOption,
) *PredictionUseCase {
	uc := &PredictionUseCase{
		provider:     provider,
		modelsC:      modelCache,
		combiner:     combiner,
		cache:        cache,
		charts:       svccache.NewTTLCache[models.ChartSeries](svccache.DefaultChartTTL),
		clock:        domsvc.SystemClock{},
		lookbackDays: domrepo.DefaultLookbackDays,
		timeout:      90 * time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// NormalizeTicker canonicalizes user input so cache keys and model keys
// never split on case or whitespace.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetPrediction returns the ensemble forecast for a ticker, computing it
// if the cached one expired. lookbackDays <= 0 uses the default window.
func (uc *PredictionUseCase) GetPrediction(ctx context.Context, ticker string, lookbackDays int) (models.EnsembleResult, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return models.EnsembleResult{}, fmt.Errorf("ticker required")
	}
	if lookbackDays <= 0 {
		lookbackDays = uc.lookbackDays
	}
	lookbackDays = domrepo.ClampLookback(lookbackDays)

	if res, ok := uc.cache.Get(ctx, ticker); ok {
		uc.recordCache("prediction", true)
		return res, nil
	}
	uc.recordCache("prediction", false)

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	start := uc.clock.Now()
	res, err := uc.compute(ctx, ticker, lookbackDays)
	if err != nil {
		uc.recordError("prediction")
		return models.EnsembleResult{}, err
	}

	uc.cache.Put(ctx, ticker, res)
	uc.publishAndPersist(ctx, res)

	if uc.metrics != nil {
		uc.metrics.RecordPrediction(ticker, res.Degraded)
		uc.metrics.RecordLatency("prediction", uc.clock.Now().Sub(start).Seconds())
	}
	return res, nil
}

// Recompute forces a fresh ensemble run, retraining every model variant.
// The scheduler uses it for stale artifacts.
func (uc *PredictionUseCase) Recompute(ctx context.Context, ticker string) (models.EnsembleResult, error) {
	ticker = NormalizeTicker(ticker)
	snapshot, err := uc.loadSnapshot(ctx, ticker, uc.lookbackDays)
	if err != nil {
		return models.EnsembleResult{}, err
	}
	for _, kind := range models.AllModelKinds() {
		if _, err := uc.modelsC.Refresh(ctx, ticker, kind, snapshot.trainingData); err != nil {
			uc.logWarn("scheduled retrain failed",
				applogger.String("ticker", ticker),
				applogger.String("kind", string(kind)),
				applogger.Error(err),
			)
		}
	}
	res, err := uc.assemble(ctx, ticker, snapshot)
	if err != nil {
		return models.EnsembleResult{}, err
	}
	uc.cache.Put(ctx, ticker, res)
	uc.publishAndPersist(ctx, res)
	return res, nil
}

// GetChartSeries returns recent bars plus the latest ensemble prediction.
// Chart data tolerates more staleness than predictions, so it has its own
// longer-lived cache.
func (uc *PredictionUseCase) GetChartSeries(ctx context.Context, ticker string, lookbackDays int) (models.ChartSeries, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return models.ChartSeries{}, fmt.Errorf("ticker required")
	}
	if lookbackDays <= 0 {
		lookbackDays = uc.lookbackDays
	}
	lookbackDays = domrepo.ClampLookback(lookbackDays)

	chartKey := pkgcache.GenerateKeyWithParams("chart", ticker, lookbackDays)
	if series, ok := uc.charts.Get(chartKey); ok {
		uc.recordCache("chart", true)
		return series, nil
	}
	uc.recordCache("chart", false)

	bars, err := uc.provider.FetchBars(ctx, ticker, lookbackDays)
	if err != nil {
		uc.recordError("chart")
		return models.ChartSeries{}, fmt.Errorf("%w: %v", models.ErrDataProvider, err)
	}

	res, err := uc.GetPrediction(ctx, ticker, lookbackDays)
	if err != nil {
		return models.ChartSeries{}, err
	}

	series := models.ChartSeries{
		Ticker:     ticker,
		Bars:       bars,
		Prediction: res.Prediction,
		ComputedAt: uc.clock.Now(),
	}
	uc.charts.Put(chartKey, series)
	return series, nil
}

// History returns recently persisted results for a ticker, if a history
// store is configured.
func (uc *PredictionUseCase) History(ctx context.Context, ticker string, since time.Time, limit int) ([]models.EnsembleResult, error) {
	if uc.history == nil {
		return nil, nil
	}
	return uc.history.RecentResults(ctx, NormalizeTicker(ticker), since, limit)
}

// featureSnapshot is one request's immutable view of the data: every
// model variant trains and predicts off the same vectors.
type featureSnapshot struct {
	train        []models.FeatureVector
	targets      []float64
	latest       models.FeatureVector
	currentPrice float64
}

func (s *featureSnapshot) trainingData(ctx context.Context) ([]models.FeatureVector, []float64, error) {
	return s.train, s.targets, nil
}

func (uc *PredictionUseCase) loadSnapshot(ctx context.Context, ticker string, lookbackDays int) (*featureSnapshot, error) {
	bars, err := uc.provider.FetchBars(ctx, ticker, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrDataProvider, ticker, err)
	}
	vectors, err := features.ComputeFeatures(bars)
	if err != nil {
		return nil, err
	}
	train, targets := features.Targets(bars, vectors)
	return &featureSnapshot{
		train:        train,
		targets:      targets,
		latest:       vectors[len(vectors)-1],
		currentPrice: bars[len(bars)-1].Close,
	}, nil
}

func (uc *PredictionUseCase) compute(ctx context.Context, ticker string, lookbackDays int) (models.EnsembleResult, error) {
	snapshot, err := uc.loadSnapshot(ctx, ticker, lookbackDays)
	if err != nil {
		return models.EnsembleResult{}, err
	}
	return uc.assemble(ctx, ticker, snapshot)
}

// assemble runs the model variants in parallel over the snapshot and
// combines whatever succeeded. A variant failing degrades the ensemble
// instead of failing the request.
func (uc *PredictionUseCase) assemble(ctx context.Context, ticker string, snapshot *featureSnapshot) (models.EnsembleResult, error) {
	type item struct {
		kind models.ModelKind
		pred models.ModelPrediction
		err  error
	}
	kinds := models.AllModelKinds()
	ch := make(chan item, len(kinds))
	var wg sync.WaitGroup

	for _, kind := range kinds {
		wg.Add(1)
		go func(kind models.ModelKind) {
			defer wg.Done()
			pred, err := uc.predictOne(ctx, ticker, kind, snapshot)
			ch <- item{kind: kind, pred: pred, err: err}
		}(kind)
	}
	go func() { wg.Wait(); close(ch) }()

	predictions := make([]models.ModelPrediction, 0, len(kinds))
	byKind := make(map[models.ModelKind]models.ModelPrediction, len(kinds))
	for it := range ch {
		if it.err != nil {
			uc.recordError("model_" + string(it.kind))
			uc.logWarn("model variant unavailable",
				applogger.String("ticker", ticker),
				applogger.String("kind", string(it.kind)),
				applogger.Error(it.err),
			)
			continue
		}
		byKind[it.kind] = it.pred
	}
	// Deterministic ensemble order regardless of goroutine finish order.
	for _, kind := range kinds {
		if pred, ok := byKind[kind]; ok {
			predictions = append(predictions, pred)
		}
	}

	return uc.combiner.Combine(ticker, predictions, snapshot.currentPrice, uc.clock.Now())
}

func (uc *PredictionUseCase) predictOne(ctx context.Context, ticker string, kind models.ModelKind, snapshot *featureSnapshot) (models.ModelPrediction, error) {
	artifact, err := uc.modelsC.GetOrTrain(ctx, ticker, kind, snapshot.trainingData)
	if err != nil {
		return models.ModelPrediction{}, err
	}
	pred, err := uc.modelsC.Predict(artifact, snapshot.latest)
	if err != nil {
		// A corrupt artifact must not poison every later request.
		uc.modelsC.Invalidate(ticker, kind)
		return models.ModelPrediction{}, err
	}
	return pred, nil
}

// publishAndPersist fans the fresh result out to the event bus and the
// history sink. Both are best-effort.
func (uc *PredictionUseCase) publishAndPersist(ctx context.Context, res models.EnsembleResult) {
	if uc.publisher != nil {
		ev := models.PredictionEvent{Ticker: res.Ticker, Result: res}
		if err := uc.publisher.PublishPrediction(ctx, ev); err != nil {
			uc.logWarn("prediction event publish failed",
				applogger.String("ticker", res.Ticker),
				applogger.Error(err),
			)
		}
	}
	if uc.history != nil {
		if err := uc.history.SaveResult(ctx, res); err != nil {
			uc.logWarn("history save failed",
				applogger.String("ticker", res.Ticker),
				applogger.Error(err),
			)
		}
	}
}

func (uc *PredictionUseCase) recordCache(cache string, hit bool) {
	if uc.metrics != nil {
		uc.metrics.RecordCache(cache, hit)
	}
}

func (uc *PredictionUseCase) recordError(kind string) {
	if uc.metrics != nil {
		uc.metrics.RecordError(kind)
	}
}

func (uc *PredictionUseCase) logWarn(msg string, fields ...applogger.Field) {
	if uc.l != nil {
		uc.l.Warn(msg, fields...)
	}
}
