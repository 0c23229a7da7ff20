package ensemble

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinSight/internal/domain/models"
)

// Combiner merges per-model predictions into one ensemble result.
type Combiner struct{}

func NewCombiner() *Combiner { return &Combiner{} }

// Combine produces the confidence-weighted ensemble forecast. It accepts
// 1-3 predictions; with zero the request fails explicitly rather than
// inventing a default. With every confidence at zero the mean falls back
// to unweighted.
func (c *Combiner) Combine(ticker string, predictions []models.ModelPrediction, currentPrice float64, now time.Time) (models.EnsembleResult, error) {
	if len(predictions) == 0 {
		return models.EnsembleResult{}, fmt.Errorf("%w: %s", models.ErrNoModelAvailable, ticker)
	}

	prices := make([]float64, len(predictions))
	weights := make([]float64, len(predictions))
	weightSum := 0.0
	confidenceSum := 0.0
	for i, p := range predictions {
		prices[i] = p.Price
		weights[i] = p.Confidence
		weightSum += p.Confidence
		confidenceSum += p.Confidence
	}

	var combined float64
	if weightSum > 0 {
		combined = stat.Mean(prices, weights)
	} else {
		combined = stat.Mean(prices, nil)
	}

	agreement := agreementLevel(prices, currentPrice)

	return models.EnsembleResult{
		Ticker:       ticker,
		CurrentPrice: currentPrice,
		Models:       predictions,
		Prediction:   combined,
		Confidence:   clampUnit(confidenceSum / float64(len(predictions)) * agreement),
		Agreement:    agreement,
		ModelsUsed:   len(predictions),
		Degraded:     len(predictions) < len(models.AllModelKinds()),
		ComputedAt:   now,
	}, nil
}

// agreementLevel is 1 - stddev(prices)/currentPrice clamped to [0,1].
// A single prediction or identical predictions agree perfectly.
func agreementLevel(prices []float64, currentPrice float64) float64 {
	if len(prices) < 2 {
		return 1
	}
	if currentPrice <= 0 {
		return 0
	}
	return clampUnit(1 - stat.StdDev(prices, nil)/currentPrice)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
