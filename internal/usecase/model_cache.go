package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	applogger "FinSight/pkg/logger"
)

// TrainingDataFunc supplies the feature snapshot a training run consumes.
// The cache calls it only when a training actually starts, so concurrent
// callers collapsed into one flight share a single data fetch too.
type TrainingDataFunc func(ctx context.Context) (vectors []models.FeatureVector, targets []float64, err error)

// ModelCache holds trained artifacts per (ticker, kind) and enforces
// at-most-one training in flight per key. Stale artifacts are still
// served; the scheduler refreshes them asynchronously.
type ModelCache struct {
	adapters        map[models.ModelKind]domsvc.ModelAdapter
	clock           domsvc.Clock
	retrainInterval time.Duration
	waitTimeout     time.Duration
	metrics         domrepo.Metrics
	l               *applogger.Logger

	mu        sync.RWMutex
	artifacts map[string]*models.ModelArtifact
	group     singleflight.Group
}

// ModelCacheOption configures a ModelCache.
type ModelCacheOption func(*ModelCache)

// WithRetrainInterval sets the staleness threshold.
func WithRetrainInterval(d time.Duration) ModelCacheOption {
	return func(c *ModelCache) { c.retrainInterval = d }
}

// WithWaitTimeout bounds how long a caller blocks on an in-flight training.
func WithWaitTimeout(d time.Duration) ModelCacheOption {
	return func(c *ModelCache) { c.waitTimeout = d }
}

// WithModelCacheClock injects a clock. Test hook.
func WithModelCacheClock(clock domsvc.Clock) ModelCacheOption {
	return func(c *ModelCache) { c.clock = clock }
}

// WithModelCacheMetrics injects a metrics recorder.
func WithModelCacheMetrics(m domrepo.Metrics) ModelCacheOption {
	return func(c *ModelCache) { c.metrics = m }
}

// WithModelCacheLogger injects a structured logger.
func WithModelCacheLogger(l *applogger.Logger) ModelCacheOption {
	return func(c *ModelCache) { c.l = l }
}

func NewModelCache(adapters []domsvc.ModelAdapter, opts ...ModelCacheOption) *ModelCache {
	c := &ModelCache{
		adapters:        make(map[models.ModelKind]domsvc.ModelAdapter, len(adapters)),
		clock:           domsvc.SystemClock{},
		retrainInterval: 24 * time.Hour,
		waitTimeout:     60 * time.Second,
		artifacts:       make(map[string]*models.ModelArtifact),
	}
	for _, a := range adapters {
		c.adapters[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func modelKey(ticker string, kind models.ModelKind) string {
	return ticker + "|" + string(kind)
}

// GetOrTrain returns the artifact for (ticker, kind), training it if
// absent. A stale artifact is returned immediately rather than blocking
// the caller on a retrain; IsStale exposes the flag. Concurrent callers
// for the same key share one training; a caller whose wait expires gets
// ErrTrainingTimeout while the flight keeps running for the others.
func (c *ModelCache) GetOrTrain(ctx context.Context, ticker string, kind models.ModelKind, data TrainingDataFunc) (*models.ModelArtifact, error) {
	if artifact, ok := c.Artifact(ticker, kind); ok {
		return artifact, nil
	}
	return c.train(ctx, ticker, kind, data)
}

// Refresh forces a new training for the key, collapsing with any
// in-flight one. The previous artifact keeps serving until the new one
// lands; on failure it stays in place.
func (c *ModelCache) Refresh(ctx context.Context, ticker string, kind models.ModelKind, data TrainingDataFunc) (*models.ModelArtifact, error) {
	return c.train(ctx, ticker, kind, data)
}

func (c *ModelCache) train(ctx context.Context, ticker string, kind models.ModelKind, data TrainingDataFunc) (*models.ModelArtifact, error) {
	adapter, ok := c.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for model kind %q", kind)
	}

	key := modelKey(ticker, kind)
	ch := c.group.DoChan(key, func() (any, error) {
		// Detached from the waiter: a caller timing out or cancelling
		// must not abort a training other waiters still benefit from.
		trainCtx := context.WithoutCancel(ctx)
		start := c.clock.Now()

		vectors, targets, err := data(trainCtx)
		if err != nil {
			c.observeTraining(kind, start, true)
			return nil, fmt.Errorf("training data for %s/%s: %w", ticker, kind, err)
		}

		artifact, err := adapter.Train(trainCtx, ticker, vectors, targets)
		if err != nil {
			c.observeTraining(kind, start, true)
			return nil, err
		}

		c.mu.Lock()
		c.artifacts[key] = artifact
		c.mu.Unlock()

		c.observeTraining(kind, start, false)
		if c.l != nil {
			c.l.Debug("model trained",
				applogger.String("ticker", ticker),
				applogger.String("kind", string(kind)),
				applogger.Int("samples", artifact.SampleCount),
			)
		}
		return artifact, nil
	})

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.ModelArtifact), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s/%s: %v", models.ErrTrainingTimeout, ticker, kind, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s/%s after %s", models.ErrTrainingTimeout, ticker, kind, c.waitTimeout)
	}
}

// Predict dispatches to the adapter that trained the artifact.
func (c *ModelCache) Predict(artifact *models.ModelArtifact, latest models.FeatureVector) (models.ModelPrediction, error) {
	adapter, ok := c.adapters[artifact.Kind]
	if !ok {
		return models.ModelPrediction{}, fmt.Errorf("no adapter registered for model kind %q", artifact.Kind)
	}
	return adapter.Predict(artifact, latest)
}

// Artifact returns the current snapshot without triggering training.
func (c *ModelCache) Artifact(ticker string, kind models.ModelKind) (*models.ModelArtifact, bool) {
	c.mu.RLock()
	artifact, ok := c.artifacts[modelKey(ticker, kind)]
	c.mu.RUnlock()
	return artifact, ok
}

// IsStale reports whether an artifact is past the retrain interval.
func (c *ModelCache) IsStale(artifact *models.ModelArtifact) bool {
	return artifact.Age(c.clock.Now()) > c.retrainInterval
}

// StaleKeys lists (ticker, kind) pairs due for a scheduled retrain.
func (c *ModelCache) StaleKeys() []StaleKey {
	now := c.clock.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []StaleKey
	for _, artifact := range c.artifacts {
		if artifact.Age(now) > c.retrainInterval {
			out = append(out, StaleKey{Ticker: artifact.Ticker, Kind: artifact.Kind})
		}
	}
	return out
}

// StaleKey identifies one artifact due for retraining.
type StaleKey struct {
	Ticker string
	Kind   models.ModelKind
}

// Invalidate drops the artifact for a key, forcing the next caller to
// train from scratch. Used when an artifact turns out corrupt.
func (c *ModelCache) Invalidate(ticker string, kind models.ModelKind) {
	c.mu.Lock()
	delete(c.artifacts, modelKey(ticker, kind))
	c.mu.Unlock()
}

// Close drops all artifacts.
func (c *ModelCache) Close() {
	c.mu.Lock()
	c.artifacts = make(map[string]*models.ModelArtifact)
	c.mu.Unlock()
}

func (c *ModelCache) observeTraining(kind models.ModelKind, start time.Time, failed bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordTraining(string(kind), c.clock.Now().Sub(start).Seconds(), failed)
}
