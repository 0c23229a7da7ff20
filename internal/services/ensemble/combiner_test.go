package ensemble

import (
	"errors"
	"math"
	"testing"
	"time"

	"FinSight/internal/domain/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestCombineZeroPredictions(t *testing.T) {
	_, err := NewCombiner().Combine("SPY", nil, 100, testNow)
	if !errors.Is(err, models.ErrNoModelAvailable) {
		t.Fatalf("expected ErrNoModelAvailable, got %v", err)
	}
}

func TestCombineSinglePrediction(t *testing.T) {
	res, err := NewCombiner().Combine("SPY", []models.ModelPrediction{
		{Kind: models.KindBoostedTree, Price: 103, Confidence: 0.7},
	}, 100, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Prediction != 103 {
		t.Fatalf("single prediction should pass through, got %v", res.Prediction)
	}
	if res.Agreement != 1.0 {
		t.Fatalf("single prediction agreement should be 1.0, got %v", res.Agreement)
	}
	if !res.Degraded || res.ModelsUsed != 1 {
		t.Fatalf("degraded metadata wrong: used=%d degraded=%v", res.ModelsUsed, res.Degraded)
	}
}

func TestCombineConfidenceWeighted(t *testing.T) {
	res, err := NewCombiner().Combine("SPY", []models.ModelPrediction{
		{Kind: models.KindTreeEnsemble, Price: 102, Confidence: 0.8},
		{Kind: models.KindBoostedTree, Price: 104, Confidence: 0.5},
		{Kind: models.KindSequenceNet, Price: 96, Confidence: 0.2},
	}, 100, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := (102*0.8 + 104*0.5 + 96*0.2) / (0.8 + 0.5 + 0.2)
	if math.Abs(res.Prediction-want) > 1e-9 {
		t.Fatalf("weighted prediction %v, want %v", res.Prediction, want)
	}
	// {102, 104, 96} around price 100 spread roughly 4-5%.
	if res.Agreement < 0.93 || res.Agreement > 0.97 {
		t.Fatalf("agreement %v outside expected band for ~4.6%% spread", res.Agreement)
	}
	if res.Degraded || res.ModelsUsed != 3 {
		t.Fatalf("full ensemble should not be degraded: used=%d degraded=%v", res.ModelsUsed, res.Degraded)
	}
}

func TestCombineZeroConfidencesFallBackToUnweighted(t *testing.T) {
	res, err := NewCombiner().Combine("SPY", []models.ModelPrediction{
		{Kind: models.KindTreeEnsemble, Price: 90, Confidence: 0},
		{Kind: models.KindBoostedTree, Price: 110, Confidence: 0},
	}, 100, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Prediction != 100 {
		t.Fatalf("unweighted fallback mean should be 100, got %v", res.Prediction)
	}
}

func TestAgreementIdenticalPredictions(t *testing.T) {
	res, err := NewCombiner().Combine("SPY", []models.ModelPrediction{
		{Kind: models.KindTreeEnsemble, Price: 105, Confidence: 0.5},
		{Kind: models.KindBoostedTree, Price: 105, Confidence: 0.6},
		{Kind: models.KindSequenceNet, Price: 105, Confidence: 0.7},
	}, 100, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Agreement != 1.0 {
		t.Fatalf("identical predictions should agree at 1.0, got %v", res.Agreement)
	}
}

func TestAgreementAlwaysInUnitRange(t *testing.T) {
	cases := [][]models.ModelPrediction{
		{{Price: 1, Confidence: 0.1}, {Price: 1000, Confidence: 0.9}},
		{{Price: 100, Confidence: 1}, {Price: 100.0001, Confidence: 1}},
		{{Price: 5, Confidence: 0}, {Price: 5, Confidence: 0}, {Price: 500, Confidence: 0}},
	}
	for i, preds := range cases {
		res, err := NewCombiner().Combine("X", preds, 100, testNow)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if res.Agreement < 0 || res.Agreement > 1 {
			t.Fatalf("case %d: agreement %v outside [0,1]", i, res.Agreement)
		}
	}
}
