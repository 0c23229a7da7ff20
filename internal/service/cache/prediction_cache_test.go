package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"FinSight/internal/domain/models"
)

func TestPredictionCacheHitWithinTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewPredictionCache(WithTTL(5 * time.Minute)).WithNow(func() time.Time { return now })
	defer c.Close()

	res := models.EnsembleResult{Ticker: "SPY", Prediction: 512.5, ComputedAt: now}
	c.Put(context.Background(), "SPY", res)

	now = now.Add(4 * time.Minute)
	got, ok := c.Get(context.Background(), "SPY")
	if !ok {
		t.Fatalf("expected hit within TTL")
	}
	if got.Prediction != 512.5 {
		t.Fatalf("got prediction %v", got.Prediction)
	}
}

func TestPredictionCacheExpiresLazily(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewPredictionCache(WithTTL(5 * time.Minute)).WithNow(func() time.Time { return now })
	defer c.Close()

	c.Put(context.Background(), "SPY", models.EnsembleResult{Ticker: "SPY"})

	now = now.Add(5*time.Minute + time.Second)
	if _, ok := c.Get(context.Background(), "SPY"); ok {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestPredictionCacheInvalidate(t *testing.T) {
	c := NewPredictionCache()
	defer c.Close()

	c.Put(context.Background(), "BTC-USD", models.EnsembleResult{Ticker: "BTC-USD"})
	c.Invalidate(context.Background(), "BTC-USD")
	if _, ok := c.Get(context.Background(), "BTC-USD"); ok {
		t.Fatalf("expected miss after invalidation")
	}
}

func TestPredictionCacheConcurrentAccess(t *testing.T) {
	c := NewPredictionCache()
	defer c.Close()

	var wg sync.WaitGroup
	tickers := []string{"SPY", "QQQ", "BTC-USD", "ETH-USD"}
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticker := tickers[i%len(tickers)]
			for j := 0; j < 200; j++ {
				c.Put(context.Background(), ticker, models.EnsembleResult{Ticker: ticker, Prediction: float64(j)})
				c.Get(context.Background(), ticker)
			}
		}(i)
	}
	wg.Wait()
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache[int](0).WithNow(func() time.Time { return now })
	c.Put("k", 42)

	now = now.Add(100 * 24 * time.Hour)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("zero-TTL entry should persist, got %v %v", v, ok)
	}
}
