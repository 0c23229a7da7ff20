package service

import (
	"context"

	"FinSight/internal/domain/models"
)

// ModelAdapter trains one model variant for a ticker and predicts the
// next-bar closing price from the latest feature vector. Implementations
// must be safe for concurrent Predict calls on the same artifact; Train
// may be expensive and is serialized per (ticker, kind) by the caller.
type ModelAdapter interface {
	Kind() models.ModelKind
	Train(ctx context.Context, ticker string, vectors []models.FeatureVector, targets []float64) (*models.ModelArtifact, error)
	Predict(artifact *models.ModelArtifact, latest models.FeatureVector) (models.ModelPrediction, error)
}

// BarProvider fetches historical OHLCV bars from the market-data provider.
// Implementations own retry/backoff; a returned error means retries are
// already exhausted.
type BarProvider interface {
	FetchBars(ctx context.Context, ticker string, lookbackDays int) ([]models.Bar, error)
}

// ConfidenceScorer maps a model's training diagnostics to a calibrated
// confidence in [0,1]. One strategy per model kind.
type ConfidenceScorer interface {
	Score(diag TrainingDiagnostics) float64
}

// TrainingDiagnostics carries the raw quantities confidence strategies
// consume. Fields are kind-specific; unused ones stay zero.
type TrainingDiagnostics struct {
	OOBVariance    float64 // tree-ensemble: out-of-bag prediction variance
	ValidationRMSE float64 // boosted-tree / sequence-network
	TargetScale    float64 // mean absolute target, for normalization
}
