package usecase

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
	svccache "FinSight/internal/service/cache"
	"FinSight/internal/services/ensemble"
)

type fakeProvider struct {
	calls atomic.Int64
	bars  []models.Bar
	err   error
}

func (p *fakeProvider) FetchBars(ctx context.Context, ticker string, lookbackDays int) ([]models.Bar, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.bars, nil
}

func waveBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		base := 100 + 10*math.Sin(float64(i)/9) + 0.02*float64(i)
		bars[i] = models.Bar{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      base - 0.2,
			High:      base + 0.6,
			Low:       base - 0.7,
			Close:     base,
			Volume:    1_000_000 + float64(i%7)*10_000,
		}
	}
	return bars
}

func newEngine(provider domsvc.BarProvider, adapters []domsvc.ModelAdapter, opts ...PredictionOption) *PredictionUseCase {
	return NewPredictionUseCase(
		provider,
		NewModelCache(adapters),
		ensemble.NewCombiner(),
		svccache.NewPredictionCache(),
		opts...,
	)
}

func threeFakes() []domsvc.ModelAdapter {
	return []domsvc.ModelAdapter{
		&fakeAdapter{kind: models.KindTreeEnsemble},
		&fakeAdapter{kind: models.KindBoostedTree},
		&fakeAdapter{kind: models.KindSequenceNet},
	}
}

func TestGetPredictionFullEnsemble(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(200)}
	uc := newEngine(provider, threeFakes())

	res, err := uc.GetPrediction(context.Background(), " spy ", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ticker != "SPY" {
		t.Fatalf("ticker not normalized: %q", res.Ticker)
	}
	if res.ModelsUsed != 3 || res.Degraded {
		t.Fatalf("expected full ensemble, got used=%d degraded=%v", res.ModelsUsed, res.Degraded)
	}
	if res.CurrentPrice <= 0 || math.IsNaN(res.Prediction) {
		t.Fatalf("bad result: price=%v prediction=%v", res.CurrentPrice, res.Prediction)
	}
}

func TestGetPredictionServedFromCache(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(200)}
	uc := newEngine(provider, threeFakes())

	if _, err := uc.GetPrediction(context.Background(), "SPY", 0); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := uc.GetPrediction(context.Background(), "SPY", 0); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("cached request refetched bars: %d provider calls", got)
	}
}

func TestGetPredictionDegradesOnVariantFailure(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(200)}
	adapters := []domsvc.ModelAdapter{
		&fakeAdapter{kind: models.KindTreeEnsemble},
		&fakeAdapter{kind: models.KindBoostedTree, failWith: errors.New("diverged")},
		&fakeAdapter{kind: models.KindSequenceNet},
	}
	uc := newEngine(provider, adapters)

	res, err := uc.GetPrediction(context.Background(), "SPY", 0)
	if err != nil {
		t.Fatalf("one failing variant must not fail the request: %v", err)
	}
	if res.ModelsUsed != 2 || !res.Degraded {
		t.Fatalf("expected degraded 2-model result, got used=%d degraded=%v", res.ModelsUsed, res.Degraded)
	}
	for _, m := range res.Models {
		if m.Kind == models.KindBoostedTree {
			t.Fatalf("failed variant appeared in result")
		}
	}
}

func TestGetPredictionAllVariantsFail(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(200)}
	boom := errors.New("boom")
	adapters := []domsvc.ModelAdapter{
		&fakeAdapter{kind: models.KindTreeEnsemble, failWith: boom},
		&fakeAdapter{kind: models.KindBoostedTree, failWith: boom},
		&fakeAdapter{kind: models.KindSequenceNet, failWith: boom},
	}
	uc := newEngine(provider, adapters)

	_, err := uc.GetPrediction(context.Background(), "SPY", 0)
	if !errors.Is(err, models.ErrNoModelAvailable) {
		t.Fatalf("expected ErrNoModelAvailable, got %v", err)
	}
}

func TestGetPredictionProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("503 from upstream")}
	uc := newEngine(provider, threeFakes())

	_, err := uc.GetPrediction(context.Background(), "SPY", 0)
	if !errors.Is(err, models.ErrDataProvider) {
		t.Fatalf("expected ErrDataProvider, got %v", err)
	}
}

func TestGetPredictionInsufficientHistory(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(30)}
	uc := newEngine(provider, threeFakes())

	_, err := uc.GetPrediction(context.Background(), "SPY", 0)
	if !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestGetChartSeriesCachesPerLookback(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(200)}
	uc := newEngine(provider, threeFakes())

	series, err := uc.GetChartSeries(context.Background(), "SPY", 90)
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	if len(series.Bars) != 200 || series.Prediction == 0 {
		t.Fatalf("chart series incomplete: bars=%d prediction=%v", len(series.Bars), series.Prediction)
	}

	before := provider.calls.Load()
	if _, err := uc.GetChartSeries(context.Background(), "SPY", 90); err != nil {
		t.Fatalf("cached chart: %v", err)
	}
	if provider.calls.Load() != before {
		t.Fatalf("cached chart refetched bars")
	}
}

type capturingPublisher struct {
	events []models.PredictionEvent
}

func (p *capturingPublisher) PublishPrediction(ctx context.Context, ev models.PredictionEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func TestGetPredictionPublishesEvent(t *testing.T) {
	provider := &fakeProvider{bars: waveBars(200)}
	pub := &capturingPublisher{}
	uc := newEngine(provider, threeFakes(), WithEventPublisher(pub))

	res, err := uc.GetPrediction(context.Background(), "SPY", 0)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Ticker != "SPY" {
		t.Fatalf("expected one SPY event, got %+v", pub.events)
	}
	if pub.events[0].Result.Prediction != res.Prediction {
		t.Fatalf("event carries a different result")
	}
}
