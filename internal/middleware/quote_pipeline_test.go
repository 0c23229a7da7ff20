package middleware

import (
	"context"
	"testing"
	"time"

	"FinSight/internal/domain/models"
)

type fakeStream struct {
	quotes    chan models.Quote
	errs      chan error
	connected bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		quotes: make(chan models.Quote, 16),
		errs:   make(chan error, 1),
	}
}

func (s *fakeStream) Connect(ctx context.Context) error   { s.connected = true; return nil }
func (s *fakeStream) Subscribe(ctx context.Context) error { return nil }
func (s *fakeStream) Reconnect(ctx context.Context) error { return nil }
func (s *fakeStream) Close() error                        { s.connected = false; return nil }
func (s *fakeStream) IsConnected() bool                   { return s.connected }

func (s *fakeStream) Read(ctx context.Context) (<-chan models.Quote, <-chan error) {
	return s.quotes, s.errs
}

func quoteAt(ticker string, price float64, at time.Time) models.Quote {
	return models.Quote{Ticker: ticker, Price: price, Timestamp: at}
}

func TestProcessRejectsInvalidQuotes(t *testing.T) {
	p := NewQuotePipeline(newFakeStream(), nil)
	now := time.Now()

	cases := []models.Quote{
		{Ticker: "", Price: 100, Timestamp: now},
		{Ticker: "SPY", Price: 0, Timestamp: now},
		{Ticker: "SPY", Price: -5, Timestamp: now},
		{Ticker: "SPY", Price: 100},
	}
	for i, q := range cases {
		if err := p.Process(q); err == nil {
			t.Fatalf("case %d: invalid quote accepted: %+v", i, q)
		}
	}
	if _, ok := p.LastQuote("SPY"); ok {
		t.Fatalf("invalid quote reached the snapshot")
	}
}

func TestProcessUpdatesSnapshot(t *testing.T) {
	p := NewQuotePipeline(newFakeStream(), nil, WithMaxRPS(0))
	base := time.Now()

	if err := p.Process(quoteAt("SPY", 600, base)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(quoteAt("SPY", 605, base.Add(time.Second))); err != nil {
		t.Fatalf("process: %v", err)
	}

	q, ok := p.LastQuote("SPY")
	if !ok || q.Price != 605 {
		t.Fatalf("snapshot not updated: %+v ok=%v", q, ok)
	}
}

func TestProcessIgnoresStaleTimestamps(t *testing.T) {
	p := NewQuotePipeline(newFakeStream(), nil, WithMaxRPS(0))
	base := time.Now()

	p.Process(quoteAt("SPY", 605, base.Add(time.Second)))
	p.Process(quoteAt("SPY", 600, base))

	q, _ := p.LastQuote("SPY")
	if q.Price != 605 {
		t.Fatalf("older quote overwrote newer one: %+v", q)
	}
}

func TestThrottleDropsBursts(t *testing.T) {
	p := NewQuotePipeline(newFakeStream(), nil, WithMaxRPS(1))
	base := time.Now()

	p.Process(quoteAt("SPY", 600, base))
	p.Process(quoteAt("SPY", 700, base.Add(time.Millisecond)))

	q, _ := p.LastQuote("SPY")
	if q.Price != 600 {
		t.Fatalf("burst quote was not throttled: %+v", q)
	}
}

func TestLastPricesReturnsOnlyKnownTickers(t *testing.T) {
	p := NewQuotePipeline(newFakeStream(), nil, WithMaxRPS(0))
	now := time.Now()

	p.Process(quoteAt("SPY", 600, now))
	p.Process(quoteAt("QQQ", 400, now))

	prices := p.LastPrices([]string{"SPY", "QQQ", "BTC-USD"})
	if len(prices) != 2 || prices["SPY"] != 600 || prices["QQQ"] != 400 {
		t.Fatalf("prices %v", prices)
	}
	if _, ok := prices["BTC-USD"]; ok {
		t.Fatalf("unseen ticker got a price")
	}
}

func TestPipelineConsumesStream(t *testing.T) {
	stream := newFakeStream()
	p := NewQuotePipeline(stream, nil, WithMaxRPS(0))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.quotes <- quoteAt("SPY", 601.5, time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if q, ok := p.LastQuote("SPY"); ok && q.Price == 601.5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline never consumed the quote")
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
}
