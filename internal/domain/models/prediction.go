package models

import "time"

// ModelKind identifies one of the ensemble's model variants.
type ModelKind string

const (
	KindTreeEnsemble ModelKind = "tree-ensemble"
	KindBoostedTree  ModelKind = "boosted-tree"
	KindSequenceNet  ModelKind = "sequence-network"
)

// AllModelKinds lists every variant in ensemble order.
func AllModelKinds() []ModelKind {
	return []ModelKind{KindTreeEnsemble, KindBoostedTree, KindSequenceNet}
}

// ModelArtifact is a trained per-ticker model. Params holds the fitted
// parameters opaquely; only the adapter that trained it interprets them.
// Artifacts are replaced atomically and never mutated after training, so
// a snapshot reference is safe to share across goroutines.
type ModelArtifact struct {
	Ticker      string
	Kind        ModelKind
	SampleCount int
	TrainedAt   time.Time
	Confidence  float64
	Params      any
}

// Age reports how long ago the artifact was trained.
func (a *ModelArtifact) Age(now time.Time) time.Duration {
	return now.Sub(a.TrainedAt)
}

// ModelPrediction is a single model's one-step-ahead forecast.
type ModelPrediction struct {
	Kind       ModelKind
	Price      float64
	Confidence float64 // [0,1]
}

// EnsembleResult is the combined forecast served to callers.
// ModelsUsed and Degraded report how many variants contributed, so a
// smaller ensemble is always visible to the consumer rather than silent.
type EnsembleResult struct {
	Ticker       string
	CurrentPrice float64
	Models       []ModelPrediction
	Prediction   float64
	Confidence   float64
	Agreement    float64 // [0,1]; 1 when all models agree exactly
	ModelsUsed   int
	Degraded     bool
	ComputedAt   time.Time
}

// ChartSeries combines recent bars with the latest ensemble prediction
// for the charting view.
type ChartSeries struct {
	Ticker     string
	Bars       []Bar
	Prediction float64
	ComputedAt time.Time
}

// PredictionEvent is emitted whenever a fresh EnsembleResult is produced,
// either on demand or by the retrain scheduler.
type PredictionEvent struct {
	Ticker string
	Result EnsembleResult
}
