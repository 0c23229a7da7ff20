package predictor

import (
	"hash/fnv"
	"math"

	"FinSight/internal/domain/models"
)

// MinTrainingSamples is the floor below which a variant refuses to train
// and is degraded out of the ensemble for the cycle.
const MinTrainingSamples = 100

// designMatrix flattens feature vectors into model input rows.
func designMatrix(vectors []models.FeatureVector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Values()
	}
	return rows
}

// splitValidation holds out the trailing fraction as a time-ordered
// validation set. Shuffled splits would leak future bars into training.
func splitValidation(x [][]float64, y []float64, holdout float64) (trainX, valX [][]float64, trainY, valY []float64) {
	cut := len(x) - int(float64(len(x))*holdout)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(x) {
		cut = len(x) - 1
	}
	return x[:cut], x[cut:], y[:cut], y[cut:]
}

// rmse computes root mean squared error between predictions and targets.
func rmse(pred, y []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	sum := 0.0
	for i := range pred {
		d := pred[i] - y[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred)))
}

// targetScale is the mean absolute target, used to normalize error-based
// confidence diagnostics across tickers at very different price levels.
func targetScale(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range y {
		sum += math.Abs(v)
	}
	return sum / float64(len(y))
}

// seedFor derives a reproducible RNG seed from the training key, so a
// retrain on identical data fits the identical model.
func seedFor(ticker string, kind models.ModelKind, samples int) int64 {
	h := fnv.New64a()
	h.Write([]byte(ticker))
	h.Write([]byte(kind))
	h.Write([]byte{byte(samples), byte(samples >> 8), byte(samples >> 16)})
	return int64(h.Sum64())
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
