package features

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"FinSight/internal/domain/models"
)

func flatBars(n int, price float64) []models.Bar {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		}
	}
	return bars
}

func trendBars(n int) []models.Bar {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := range bars {
		price += math.Sin(float64(i)*0.7)*2 + 0.3
		bars[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000 + float64(i%7)*100,
		}
	}
	return bars
}

func TestComputeFeaturesInsufficientHistory(t *testing.T) {
	_, err := ComputeFeatures(flatBars(WarmupBars-1, 100))
	if !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestComputeFeaturesVectorPerValidIndex(t *testing.T) {
	bars := trendBars(60)
	vs, err := ComputeFeatures(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 60 - WarmupBars + 1; len(vs) != want {
		t.Fatalf("expected %d vectors, got %d", want, len(vs))
	}
	for i, v := range vs {
		if v.Index != WarmupBars-1+i {
			t.Fatalf("vector %d has index %d", i, v.Index)
		}
		for j, x := range v.Values() {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("vector %d field %d not finite: %v", i, j, x)
			}
		}
	}
}

func TestComputeFeaturesDeterministic(t *testing.T) {
	bars := trendBars(120)
	a, err := ComputeFeatures(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeFeatures(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("feature computation not deterministic")
	}
}

func TestComputeFeaturesFlatSeriesSentinels(t *testing.T) {
	vs, err := ComputeFeatures(flatBars(60, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range vs {
		if v.RSI14 != 50 {
			t.Fatalf("index %d: RSI %v, want neutral 50", v.Index, v.RSI14)
		}
		if v.StochasticK != 50 {
			t.Fatalf("index %d: stochastic %%K %v, want neutral 50", v.Index, v.StochasticK)
		}
		if v.SMA20 != 100 || v.SMA50 != 100 {
			t.Fatalf("index %d: SMA20=%v SMA50=%v, want 100", v.Index, v.SMA20, v.SMA50)
		}
		if v.Volatility != 0 {
			t.Fatalf("index %d: volatility %v, want 0", v.Index, v.Volatility)
		}
		if v.VolumeRatio != 1 {
			t.Fatalf("index %d: volume ratio %v, want 1", v.Index, v.VolumeRatio)
		}
	}
}

func TestComputeFeaturesNoLookahead(t *testing.T) {
	// Mutating bars after index i must not change the vector at i.
	bars := trendBars(80)
	full, err := ComputeFeatures(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	truncated, err := ComputeFeatures(bars[:70])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range truncated {
		if !reflect.DeepEqual(v, full[i]) {
			t.Fatalf("vector at index %d depends on future bars", v.Index)
		}
	}
}

func TestTargetsOneStepLag(t *testing.T) {
	bars := trendBars(60)
	vs, err := ComputeFeatures(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	train, targets := Targets(bars, vs)
	if len(train) != len(vs)-1 {
		t.Fatalf("expected %d training rows, got %d", len(vs)-1, len(train))
	}
	for i, v := range train {
		if targets[i] != bars[v.Index+1].Close {
			t.Fatalf("target %d is %v, want next close %v", i, targets[i], bars[v.Index+1].Close)
		}
	}
}
