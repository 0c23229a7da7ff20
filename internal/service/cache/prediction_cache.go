package cache

import (
	"context"
	"errors"
	"time"

	"FinSight/internal/domain/models"
	pkgcache "FinSight/pkg/cache"
	applogger "FinSight/pkg/logger"
)

// Default TTLs for cached engine outputs.
const (
	DefaultPredictionTTL = 5 * time.Minute
	DefaultChartTTL      = 10 * time.Minute
)

// PredictionCache absorbs repeated prediction requests per ticker.
// L1 is the in-process TTL cache; an optional L2 (Redis via pkg/cache)
// lets multiple instances share results. L2 failures degrade to L1 only.
type PredictionCache struct {
	l1  *TTLCache[models.EnsembleResult]
	l2  pkgcache.Service
	ttl time.Duration
	l   *applogger.Logger
}

type PredictionCacheOption func(*PredictionCache)

// WithL2 attaches a shared second cache level.
func WithL2(svc pkgcache.Service) PredictionCacheOption {
	return func(c *PredictionCache) { c.l2 = svc }
}

// WithTTL overrides the prediction TTL.
func WithTTL(ttl time.Duration) PredictionCacheOption {
	return func(c *PredictionCache) { c.ttl = ttl }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) PredictionCacheOption {
	return func(c *PredictionCache) { c.l = l }
}

func NewPredictionCache(opts ...PredictionCacheOption) *PredictionCache {
	c := &PredictionCache{ttl: DefaultPredictionTTL}
	for _, opt := range opts {
		opt(c)
	}
	c.l1 = NewTTLCache[models.EnsembleResult](c.ttl)
	return c
}

// WithNow overrides the L1 clock. Test hook.
func (c *PredictionCache) WithNow(now func() time.Time) *PredictionCache {
	c.l1.WithNow(now)
	return c
}

func (c *PredictionCache) Get(ctx context.Context, ticker string) (models.EnsembleResult, bool) {
	if res, ok := c.l1.Get(ticker); ok {
		return res, true
	}
	if c.l2 == nil {
		return models.EnsembleResult{}, false
	}
	var res models.EnsembleResult
	if err := c.l2.Get(ctx, l2Key(ticker), &res); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) && c.l != nil {
			c.l.Warn("prediction cache l2 get failed", applogger.String("ticker", ticker), applogger.Error(err))
		}
		return models.EnsembleResult{}, false
	}
	c.l1.Put(ticker, res)
	return res, true
}

func (c *PredictionCache) Put(ctx context.Context, ticker string, res models.EnsembleResult) {
	c.l1.Put(ticker, res)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, l2Key(ticker), res, c.ttl); err != nil && c.l != nil {
		c.l.Warn("prediction cache l2 set failed", applogger.String("ticker", ticker), applogger.Error(err))
	}
}

// Invalidate drops the entry for a ticker in both levels.
func (c *PredictionCache) Invalidate(ctx context.Context, ticker string) {
	c.l1.Invalidate(ticker)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Delete(ctx, l2Key(ticker)); err != nil && c.l != nil {
		c.l.Warn("prediction cache l2 delete failed", applogger.String("ticker", ticker), applogger.Error(err))
	}
}

// Close tears the cache down. L2 lifetime belongs to its owner.
func (c *PredictionCache) Close() {
	c.l1.Purge()
}

func l2Key(ticker string) string {
	return pkgcache.GenerateKey("prediction", ticker)
}
