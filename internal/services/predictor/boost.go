package predictor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
)

// BoostAdapter is the boosted-tree variant: gradient boosting over
// regression stumps with a time-ordered validation holdout.
type BoostAdapter struct {
	rounds       int
	learningRate float64
	holdout      float64
	scorer       domsvc.ConfidenceScorer
}

// NewBoostAdapter builds the boosted-tree adapter.
func NewBoostAdapter(scorer domsvc.ConfidenceScorer) *BoostAdapter {
	return &BoostAdapter{
		rounds:       100,
		learningRate: 0.1,
		holdout:      0.2,
		scorer:       scorer,
	}
}

func (a *BoostAdapter) Kind() models.ModelKind { return models.KindBoostedTree }

type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

func (s stump) predict(row []float64) float64 {
	if row[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

type boostParams struct {
	base         float64
	learningRate float64
	stumps       []stump
}

// Train fits additive stumps on residuals; validation RMSE on the held-out
// tail drives the confidence strategy.
func (a *BoostAdapter) Train(ctx context.Context, ticker string, vectors []models.FeatureVector, targets []float64) (*models.ModelArtifact, error) {
	n := len(vectors)
	if n < MinTrainingSamples || len(targets) != n {
		return nil, fmt.Errorf("%w: %s/%s has %d samples, need %d", models.ErrInsufficientSamples, ticker, a.Kind(), n, MinTrainingSamples)
	}

	x := designMatrix(vectors)
	trainX, valX, trainY, valY := splitValidation(x, targets, a.holdout)

	base := 0.0
	for _, v := range trainY {
		base += v
	}
	base /= float64(len(trainY))

	pred := make([]float64, len(trainY))
	residual := make([]float64, len(trainY))
	for i := range pred {
		pred[i] = base
	}

	stumps := make([]stump, 0, a.rounds)
	for r := 0; r < a.rounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range residual {
			residual[i] = trainY[i] - pred[i]
		}
		st, ok := fitStump(trainX, residual)
		if !ok {
			break
		}
		stumps = append(stumps, st)
		for i := range pred {
			pred[i] += a.learningRate * st.predict(trainX[i])
		}
	}

	params := &boostParams{base: base, learningRate: a.learningRate, stumps: stumps}
	valPred := make([]float64, len(valY))
	for i := range valX {
		valPred[i] = params.score(valX[i])
	}

	diag := domsvc.TrainingDiagnostics{
		ValidationRMSE: rmse(valPred, valY),
		TargetScale:    targetScale(targets),
	}

	return &models.ModelArtifact{
		Ticker:      ticker,
		Kind:        a.Kind(),
		SampleCount: n,
		TrainedAt:   time.Now(),
		Confidence:  a.scorer.Score(diag),
		Params:      params,
	}, nil
}

// Predict runs the additive model on the latest feature vector.
func (a *BoostAdapter) Predict(artifact *models.ModelArtifact, latest models.FeatureVector) (models.ModelPrediction, error) {
	params, ok := artifact.Params.(*boostParams)
	if !ok {
		return models.ModelPrediction{}, fmt.Errorf("%s artifact for %s holds no fitted booster", a.Kind(), artifact.Ticker)
	}
	return models.ModelPrediction{
		Kind:       a.Kind(),
		Price:      params.score(latest.Values()),
		Confidence: artifact.Confidence,
	}, nil
}

func (p *boostParams) score(row []float64) float64 {
	out := p.base
	for _, st := range p.stumps {
		out += p.learningRate * st.predict(row)
	}
	return out
}

// fitStump exhaustively searches features with quantile thresholds for the
// stump minimizing SSE against the residuals.
func fitStump(x [][]float64, residual []float64) (stump, bool) {
	const quantiles = 16
	n := len(x)
	if n == 0 {
		return stump{}, false
	}
	nFeatures := len(x[0])

	var best stump
	bestCost := sseAll(residual)
	if bestCost == 0 {
		return stump{}, false
	}
	found := false

	column := make([]float64, n)
	for f := 0; f < nFeatures; f++ {
		for i := range x {
			column[i] = x[i][f]
		}
		for _, th := range quantileThresholds(column, quantiles) {
			var lSum, rSum float64
			var lN, rN int
			for i := range x {
				if x[i][f] <= th {
					lSum += residual[i]
					lN++
				} else {
					rSum += residual[i]
					rN++
				}
			}
			if lN == 0 || rN == 0 {
				continue
			}
			lMean := lSum / float64(lN)
			rMean := rSum / float64(rN)
			cost := 0.0
			for i := range x {
				var d float64
				if x[i][f] <= th {
					d = residual[i] - lMean
				} else {
					d = residual[i] - rMean
				}
				cost += d * d
			}
			if cost < bestCost {
				bestCost = cost
				best = stump{feature: f, threshold: th, left: lMean, right: rMean}
				found = true
			}
		}
	}
	return best, found
}

func quantileThresholds(column []float64, count int) []float64 {
	sorted := append([]float64(nil), column...)
	sort.Float64s(sorted)
	out := make([]float64, 0, count)
	for q := 1; q < count; q++ {
		th := sorted[q*len(sorted)/count]
		if len(out) == 0 || th != out[len(out)-1] {
			out = append(out, th)
		}
	}
	return out
}

func sseAll(y []float64) float64 {
	var sum, sum2 float64
	for _, v := range y {
		sum += v
		sum2 += v * v
	}
	return sum2 - sum*sum/float64(len(y))
}
