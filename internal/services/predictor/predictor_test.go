package predictor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
	"FinSight/internal/services/features"
)

func trainingSet(t *testing.T, bars int) ([]models.FeatureVector, []float64) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]models.Bar, bars)
	price := 100.0
	for i := range series {
		price += math.Sin(float64(i)*0.45)*1.5 + 0.1
		series[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price - 0.4,
			High:      price + 0.9,
			Low:       price - 0.9,
			Close:     price,
			Volume:    5000 + float64(i%11)*250,
		}
	}
	vs, err := features.ComputeFeatures(series)
	if err != nil {
		t.Fatalf("compute features: %v", err)
	}
	train, targets := features.Targets(series, vs)
	return train, targets
}

func adapters() []domsvc.ModelAdapter {
	cfg := DefaultConfidenceConfig()
	return []domsvc.ModelAdapter{
		NewForestAdapter(NewForestConfidence(cfg)),
		NewBoostAdapter(NewBoostConfidence(cfg)),
		NewSeqNetAdapter(NewSeqNetConfidence(cfg)),
	}
}

func TestAdaptersTrainAndPredict(t *testing.T) {
	train, targets := trainingSet(t, 200)
	for _, a := range adapters() {
		artifact, err := a.Train(context.Background(), "TEST", train, targets)
		if err != nil {
			t.Fatalf("%s train: %v", a.Kind(), err)
		}
		if artifact.Kind != a.Kind() || artifact.Ticker != "TEST" {
			t.Fatalf("%s artifact mislabeled: %+v", a.Kind(), artifact)
		}
		if artifact.SampleCount != len(train) {
			t.Fatalf("%s sample count %d, want %d", a.Kind(), artifact.SampleCount, len(train))
		}
		if artifact.Confidence < 0 || artifact.Confidence > 1 {
			t.Fatalf("%s confidence %v outside [0,1]", a.Kind(), artifact.Confidence)
		}

		pred, err := a.Predict(artifact, train[len(train)-1])
		if err != nil {
			t.Fatalf("%s predict: %v", a.Kind(), err)
		}
		if math.IsNaN(pred.Price) || math.IsInf(pred.Price, 0) || pred.Price <= 0 {
			t.Fatalf("%s predicted non-positive or non-finite price %v", a.Kind(), pred.Price)
		}
		if pred.Kind != a.Kind() {
			t.Fatalf("prediction kind %s, want %s", pred.Kind, a.Kind())
		}
	}
}

func TestAdaptersRejectSmallSamples(t *testing.T) {
	// 200 bars leave ~150 vectors after warm-up, enough to slice down
	// to one below the training minimum.
	train, targets := trainingSet(t, 200)
	if len(train) < MinTrainingSamples {
		t.Fatalf("fixture too small: %d vectors", len(train))
	}
	short := train[:MinTrainingSamples-1]
	shortTargets := targets[:MinTrainingSamples-1]
	for _, a := range adapters() {
		if _, err := a.Train(context.Background(), "TEST", short, shortTargets); !errors.Is(err, models.ErrInsufficientSamples) {
			t.Fatalf("%s: expected ErrInsufficientSamples, got %v", a.Kind(), err)
		}
	}
}

func TestAdapterTrainingIsReproducible(t *testing.T) {
	train, targets := trainingSet(t, 200)
	a := NewForestAdapter(NewForestConfidence(DefaultConfidenceConfig()))

	first, err := a.Train(context.Background(), "TEST", train, targets)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	second, err := a.Train(context.Background(), "TEST", train, targets)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	p1, _ := a.Predict(first, train[len(train)-1])
	p2, _ := a.Predict(second, train[len(train)-1])
	if p1.Price != p2.Price {
		t.Fatalf("identical training data produced %v then %v", p1.Price, p2.Price)
	}
}

func TestAdapterTrainingHonorsCancel(t *testing.T) {
	train, targets := trainingSet(t, 200)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, a := range adapters() {
		if _, err := a.Train(ctx, "TEST", train, targets); !errors.Is(err, context.Canceled) {
			t.Fatalf("%s: expected context.Canceled, got %v", a.Kind(), err)
		}
	}
}

func TestBoostConfidencePriorAndDecay(t *testing.T) {
	cfg := DefaultConfidenceConfig()
	s := NewBoostConfidence(cfg)

	low := domsvc.TrainingDiagnostics{ValidationRMSE: 0.5, TargetScale: 100}
	if got := s.Score(low); got != cfg.BoostPrior {
		t.Fatalf("below-threshold error should keep prior %v, got %v", cfg.BoostPrior, got)
	}

	high := domsvc.TrainingDiagnostics{ValidationRMSE: 10, TargetScale: 100}
	if got := s.Score(high); got >= cfg.BoostPrior {
		t.Fatalf("above-threshold error should decay below prior, got %v", got)
	}
}

func TestSeqNetConfidenceInverseLoss(t *testing.T) {
	s := NewSeqNetConfidence(DefaultConfidenceConfig())
	perfect := s.Score(domsvc.TrainingDiagnostics{ValidationRMSE: 0, TargetScale: 100})
	if perfect != 1 {
		t.Fatalf("zero validation loss should score 1, got %v", perfect)
	}
	noisy := s.Score(domsvc.TrainingDiagnostics{ValidationRMSE: 20, TargetScale: 100})
	if noisy >= perfect || noisy < 0 {
		t.Fatalf("noisy model scored %v", noisy)
	}
}

func TestForestConfidenceClamped(t *testing.T) {
	s := NewForestConfidence(DefaultConfidenceConfig())
	huge := s.Score(domsvc.TrainingDiagnostics{OOBVariance: 1e9, TargetScale: 100})
	if huge < 0.05 || huge > 1 {
		t.Fatalf("confidence %v outside clamp", huge)
	}
	tight := s.Score(domsvc.TrainingDiagnostics{OOBVariance: 0, TargetScale: 100})
	if tight != 1 {
		t.Fatalf("zero OOB variance should score 1, got %v", tight)
	}
}
