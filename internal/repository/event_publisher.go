package repository

import (
	"context"
	"sync"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	pkgkafka "FinSight/pkg/kafka"
)

// KafkaEventPublisher emits prediction refresh events to Kafka, keyed
// by ticker so one ticker's events stay ordered on a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) domrepo.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishPrediction(ctx context.Context, ev models.PredictionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Ticker), map[string]interface{}{
		"event":         "predictionRefreshed",
		"ticker":        ev.Ticker,
		"current_price": ev.Result.CurrentPrice,
		"prediction":    ev.Result.Prediction,
		"confidence":    ev.Result.Confidence,
		"agreement":     ev.Result.Agreement,
		"models_used":   ev.Result.ModelsUsed,
		"degraded":      ev.Result.Degraded,
		"computed_at":   ev.Result.ComputedAt,
	})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// InProcPublisher fans prediction events out to in-process subscribers,
// for deployments without a broker. Slow subscribers drop events rather
// than block the publisher.
type InProcPublisher struct {
	mu     sync.Mutex
	subs   map[int]chan models.PredictionEvent
	nextID int
	closed bool
}

func NewInProcPublisher() *InProcPublisher {
	return &InProcPublisher{subs: make(map[int]chan models.PredictionEvent)}
}

// Subscribe registers a listener. The returned cancel removes it.
func (p *InProcPublisher) Subscribe(buffer int) (<-chan models.PredictionEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.PredictionEvent, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
		p.mu.Unlock()
	}
	return ch, cancel
}

func (p *InProcPublisher) PublishPrediction(ctx context.Context, ev models.PredictionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (p *InProcPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	return nil
}
