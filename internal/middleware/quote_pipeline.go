package middleware

import (
	"context"
	"fmt"
	"sync"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	"FinSight/internal/service/ratelimit"
	applogger "FinSight/pkg/logger"
)

// QuotePipeline sits between the provider WebSocket and the alert
// evaluator. It validates and throttles incoming quotes and maintains
// the last observed price per ticker. The snapshot feeds alert passes
// and the last-price gauge.
type QuotePipeline struct {
	stream  domrepo.PriceStream
	metrics domrepo.Metrics
	l       *applogger.Logger

	maxRPS   int
	throttle *ratelimit.Limiter

	mu        sync.RWMutex
	lastQuote map[string]models.Quote

	lifecycleMu sync.Mutex
	started     bool
	stopCh      chan struct{}
	done        chan struct{}
}

type PipelineOption func(*QuotePipeline)

// WithMaxRPS caps accepted quotes per second per ticker. Zero disables
// the throttle.
func WithMaxRPS(n int) PipelineOption {
	return func(p *QuotePipeline) { p.maxRPS = n }
}

// WithPipelineLogger injects a structured logger.
func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *QuotePipeline) { p.l = l }
}

func NewQuotePipeline(stream domrepo.PriceStream, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		stream:    stream,
		metrics:   metrics,
		maxRPS:    20, // default throttle per ticker
		throttle:  ratelimit.New(),
		lastQuote: make(map[string]models.Quote),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start connects the stream and launches the consume loop. The loop
// reconnects on stream errors until Stop or context cancellation.
func (p *QuotePipeline) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	if p.started {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.started = true
	p.lifecycleMu.Unlock()

	if err := p.stream.Connect(ctx); err != nil {
		return err
	}
	if err := p.stream.Subscribe(ctx); err != nil {
		return err
	}

	go p.consumeLoop(ctx)
	return nil
}

// Stop halts the consume loop and closes the stream.
func (p *QuotePipeline) Stop() {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return
	}
	p.started = false
	p.lifecycleMu.Unlock()
	close(p.stopCh)
	_ = p.stream.Close()
	<-p.done
}

func (p *QuotePipeline) consumeLoop(ctx context.Context) {
	defer close(p.done)
	for {
		quotes, errs := p.stream.Read(ctx)
	consume:
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case q, ok := <-quotes:
				if !ok {
					// Stream closed both channels; fall through to reconnect.
					break consume
				}
				p.Process(q)
			case err, ok := <-errs:
				if !ok {
					break consume
				}
				if err != nil {
					p.recordError("stream_read")
					if p.l != nil {
						p.l.Warn("quote stream error, reconnecting", applogger.Error(err))
					}
				}
			}
		}

		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := p.stream.Reconnect(ctx); err != nil {
			p.recordError("stream_reconnect")
			if p.l != nil {
				p.l.Warn("quote stream reconnect failed", applogger.Error(err))
			}
		}
	}
}

// Process validates and throttles one quote, then updates the snapshot.
func (p *QuotePipeline) Process(q models.Quote) error {
	if err := validateQuote(q); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if p.maxRPS > 0 && !p.throttle.Allow(q.Ticker, float64(p.maxRPS), float64(p.maxRPS)) {
		p.recordError("pipeline_throttle")
		return nil
	}

	p.mu.Lock()
	prev, ok := p.lastQuote[q.Ticker]
	if !ok || !q.Timestamp.Before(prev.Timestamp) {
		p.lastQuote[q.Ticker] = q
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordLastPrice(q.Ticker, q.Price)
	}
	return nil
}

// LastPrices resolves the latest known price for each requested ticker.
// Tickers never seen on the stream are omitted.
func (p *QuotePipeline) LastPrices(tickers []string) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	p.mu.RLock()
	for _, t := range tickers {
		if q, ok := p.lastQuote[t]; ok {
			out[t] = q.Price
		}
	}
	p.mu.RUnlock()
	return out
}

// LastQuote returns the latest quote for one ticker.
func (p *QuotePipeline) LastQuote(ticker string) (models.Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.lastQuote[ticker]
	return q, ok
}

func validateQuote(q models.Quote) error {
	if q.Ticker == "" {
		return fmt.Errorf("ticker empty")
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if q.Price <= 0 {
		return fmt.Errorf("price not positive")
	}
	return nil
}

func (p *QuotePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
