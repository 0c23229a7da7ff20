package repository

import (
	"context"
	"testing"

	"FinSight/internal/domain/models"
)

func event(ticker string) models.PredictionEvent {
	return models.PredictionEvent{Ticker: ticker, Result: models.EnsembleResult{Ticker: ticker, Prediction: 101}}
}

func TestInProcPublisherDeliversToSubscribers(t *testing.T) {
	p := NewInProcPublisher()
	defer p.Close()

	ch1, cancel1 := p.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := p.Subscribe(4)
	defer cancel2()

	if err := p.PublishPrediction(context.Background(), event("SPY")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, ch := range []<-chan models.PredictionEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Ticker != "SPY" {
				t.Fatalf("subscriber %d got %q", i, ev.Ticker)
			}
		default:
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestInProcPublisherDropsWhenSubscriberFull(t *testing.T) {
	p := NewInProcPublisher()
	defer p.Close()

	ch, cancel := p.Subscribe(1)
	defer cancel()

	p.PublishPrediction(context.Background(), event("SPY"))
	p.PublishPrediction(context.Background(), event("QQQ"))

	ev := <-ch
	if ev.Ticker != "SPY" {
		t.Fatalf("expected first event kept, got %q", ev.Ticker)
	}
	select {
	case ev := <-ch:
		t.Fatalf("overflow event should be dropped, got %q", ev.Ticker)
	default:
	}
}

func TestInProcPublisherCancelRemovesSubscriber(t *testing.T) {
	p := NewInProcPublisher()
	defer p.Close()

	ch, cancel := p.Subscribe(1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("cancelled subscriber channel should be closed")
	}
	if err := p.PublishPrediction(context.Background(), event("SPY")); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestInProcPublisherCloseIsIdempotent(t *testing.T) {
	p := NewInProcPublisher()
	ch, _ := p.Subscribe(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("subscriber channel should be closed on publisher close")
	}
	if err := p.PublishPrediction(context.Background(), event("SPY")); err != nil {
		t.Fatalf("publish after close should be a no-op, got %v", err)
	}
}
