package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
)

type fakeAdapter struct {
	kind     models.ModelKind
	trains   atomic.Int64
	delay    time.Duration
	failWith error
}

func (f *fakeAdapter) Kind() models.ModelKind { return f.kind }

func (f *fakeAdapter) Train(ctx context.Context, ticker string, vectors []models.FeatureVector, targets []float64) (*models.ModelArtifact, error) {
	f.trains.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &models.ModelArtifact{
		Ticker:      ticker,
		Kind:        f.kind,
		SampleCount: len(vectors),
		TrainedAt:   time.Now(),
		Confidence:  0.7,
	}, nil
}

func (f *fakeAdapter) Predict(artifact *models.ModelArtifact, latest models.FeatureVector) (models.ModelPrediction, error) {
	return models.ModelPrediction{Kind: f.kind, Price: 100, Confidence: artifact.Confidence}, nil
}

func noData(ctx context.Context) ([]models.FeatureVector, []float64, error) {
	return make([]models.FeatureVector, 120), make([]float64, 120), nil
}

type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTicker(d time.Duration) domsvc.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Tick fires every ticker created so far with the current time. A
// ticker whose previous tick is still pending is skipped, matching
// time.Ticker drop semantics.
func (c *manualClock) Tick() {
	c.mu.Lock()
	now := c.now
	tickers := append([]*manualTicker(nil), c.tickers...)
	c.mu.Unlock()
	for _, t := range tickers {
		select {
		case t.ch <- now:
		default:
		}
	}
}

type manualTicker struct{ ch chan time.Time }

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

func TestGetOrTrainCollapsesConcurrentCallers(t *testing.T) {
	adapter := &fakeAdapter{kind: models.KindTreeEnsemble, delay: 20 * time.Millisecond}
	cache := NewModelCache([]domsvc.ModelAdapter{adapter})

	const callers = 16
	results := make([]*models.ModelArtifact, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrTrain(context.Background(), "SPY", models.KindTreeEnsemble, noData)
		}(i)
	}
	wg.Wait()

	if got := adapter.trains.Load(); got != 1 {
		t.Fatalf("expected exactly 1 training, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different artifact instance", i)
		}
	}
}

func TestGetOrTrainServesCachedArtifact(t *testing.T) {
	adapter := &fakeAdapter{kind: models.KindBoostedTree}
	cache := NewModelCache([]domsvc.ModelAdapter{adapter})

	first, err := cache.GetOrTrain(context.Background(), "QQQ", models.KindBoostedTree, noData)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	second, err := cache.GetOrTrain(context.Background(), "QQQ", models.KindBoostedTree, noData)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached artifact instance back")
	}
	if got := adapter.trains.Load(); got != 1 {
		t.Fatalf("cached get retrained: %d trainings", got)
	}
}

func TestGetOrTrainTimeoutLeavesTrainingRunning(t *testing.T) {
	adapter := &fakeAdapter{kind: models.KindSequenceNet, delay: 100 * time.Millisecond}
	cache := NewModelCache([]domsvc.ModelAdapter{adapter}, WithWaitTimeout(10*time.Millisecond))

	_, err := cache.GetOrTrain(context.Background(), "SPY", models.KindSequenceNet, noData)
	if !errors.Is(err, models.ErrTrainingTimeout) {
		t.Fatalf("expected ErrTrainingTimeout, got %v", err)
	}

	// The flight keeps running; the artifact lands for later callers.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := cache.Artifact("SPY", models.KindSequenceNet); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("training did not complete after waiter timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetOrTrainCancelledCallerDoesNotAbortFlight(t *testing.T) {
	adapter := &fakeAdapter{kind: models.KindTreeEnsemble, delay: 50 * time.Millisecond}
	cache := NewModelCache([]domsvc.ModelAdapter{adapter})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := cache.GetOrTrain(ctx, "SPY", models.KindTreeEnsemble, noData)
	if !errors.Is(err, models.ErrTrainingTimeout) {
		t.Fatalf("cancelled waiter should map to ErrTrainingTimeout, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := cache.Artifact("SPY", models.KindTreeEnsemble); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("training was aborted by the cancelled waiter")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefreshReplacesArtifactAndKeepsOldOnFailure(t *testing.T) {
	adapter := &fakeAdapter{kind: models.KindTreeEnsemble}
	cache := NewModelCache([]domsvc.ModelAdapter{adapter})

	first, err := cache.GetOrTrain(context.Background(), "SPY", models.KindTreeEnsemble, noData)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	second, err := cache.Refresh(context.Background(), "SPY", models.KindTreeEnsemble, noData)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second == first {
		t.Fatalf("refresh should produce a new artifact")
	}
	if got, _ := cache.Artifact("SPY", models.KindTreeEnsemble); got != second {
		t.Fatalf("refresh did not install the new artifact")
	}

	adapter.failWith = errors.New("provider down")
	if _, err := cache.Refresh(context.Background(), "SPY", models.KindTreeEnsemble, noData); err == nil {
		t.Fatalf("expected refresh failure")
	}
	if got, _ := cache.Artifact("SPY", models.KindTreeEnsemble); got != second {
		t.Fatalf("failed refresh must keep the previous artifact serving")
	}
}

func TestStaleKeysAndInvalidate(t *testing.T) {
	adapter := &fakeAdapter{kind: models.KindTreeEnsemble}
	clock := &manualClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewModelCache([]domsvc.ModelAdapter{adapter}, WithModelCacheClock(clock))

	if _, err := cache.GetOrTrain(context.Background(), "SPY", models.KindTreeEnsemble, noData); err != nil {
		t.Fatalf("train: %v", err)
	}
	// Anchor the artifact's training time to the manual clock.
	artifact, _ := cache.Artifact("SPY", models.KindTreeEnsemble)
	artifact.TrainedAt = clock.Now()

	if keys := cache.StaleKeys(); len(keys) != 0 {
		t.Fatalf("fresh artifact flagged stale: %v", keys)
	}

	clock.Advance(25 * time.Hour)
	keys := cache.StaleKeys()
	if len(keys) != 1 || keys[0].Ticker != "SPY" || keys[0].Kind != models.KindTreeEnsemble {
		t.Fatalf("expected SPY/tree-ensemble stale, got %v", keys)
	}

	cache.Invalidate("SPY", models.KindTreeEnsemble)
	if _, ok := cache.Artifact("SPY", models.KindTreeEnsemble); ok {
		t.Fatalf("artifact survived invalidation")
	}
}
