package repository

import (
	"context"
	"time"

	"FinSight/internal/domain/models"
)

// PriceStream is a live quote feed from the data provider.
type PriceStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EventPublisher fans out predictionRefreshed events to the transport
// layer. Publishing is best-effort; failures must not fail the request.
type EventPublisher interface {
	PublishPrediction(ctx context.Context, ev models.PredictionEvent) error
	Close() error
}

// HistoryStore persists ensemble results for audit and backtesting.
type HistoryStore interface {
	Init(ctx context.Context) error
	SaveResult(ctx context.Context, res models.EnsembleResult) error
	RecentResults(ctx context.Context, ticker string, since time.Time, limit int) ([]models.EnsembleResult, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordPrediction(ticker string, degraded bool)
	RecordTraining(kind string, seconds float64, failed bool)
	RecordCache(cache string, hit bool)
	RecordAlert(ticker string)
	RecordError(kind string)
	RecordLastPrice(ticker string, price float64)
	RecordLatency(op string, seconds float64)
}
