package predictor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
)

// SeqNetAdapter is the sequence-network variant: a single-hidden-layer
// network over standardized features, trained with SGD on the bar
// sequence in time order. Validation loss on the held-out tail drives
// the inverse-loss confidence.
type SeqNetAdapter struct {
	hidden       int
	epochs       int
	learningRate float64
	holdout      float64
	scorer       domsvc.ConfidenceScorer
}

// NewSeqNetAdapter builds the sequence-network adapter.
func NewSeqNetAdapter(scorer domsvc.ConfidenceScorer) *SeqNetAdapter {
	return &SeqNetAdapter{
		hidden:       8,
		epochs:       200,
		learningRate: 0.01,
		holdout:      0.2,
		scorer:       scorer,
	}
}

func (a *SeqNetAdapter) Kind() models.ModelKind { return models.KindSequenceNet }

type seqNetParams struct {
	w1 *mat.Dense    // hidden x features
	b1 *mat.VecDense // hidden
	w2 *mat.VecDense // hidden
	b2 float64

	featMean []float64
	featStd  []float64
	yMean    float64
	yStd     float64
}

// Train fits the network with per-sample SGD, shuffling each epoch with a
// reproducible seed.
func (a *SeqNetAdapter) Train(ctx context.Context, ticker string, vectors []models.FeatureVector, targets []float64) (*models.ModelArtifact, error) {
	n := len(vectors)
	if n < MinTrainingSamples || len(targets) != n {
		return nil, fmt.Errorf("%w: %s/%s has %d samples, need %d", models.ErrInsufficientSamples, ticker, a.Kind(), n, MinTrainingSamples)
	}

	x := designMatrix(vectors)
	trainX, valX, trainY, valY := splitValidation(x, targets, a.holdout)

	params := newSeqNetParams(a.hidden, models.FeatureCount, trainX, trainY, rand.New(rand.NewSource(seedFor(ticker, a.Kind(), n))))

	rng := rand.New(rand.NewSource(seedFor(ticker, a.Kind(), n) + 1))
	for epoch := 0; epoch < a.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, i := range rng.Perm(len(trainX)) {
			params.sgdStep(trainX[i], trainY[i], a.learningRate)
		}
	}

	valPred := make([]float64, len(valY))
	for i := range valX {
		valPred[i] = params.forward(valX[i])
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

// Predict runs a forward pass on the latest feature vector.
func (a *SeqNetAdapter) Predict(artifact *models.ModelArtifact, latest models.FeatureVector) (models.ModelPrediction, error) {
	params, ok := artifact.Params.(*seqNetParams)
	if !ok {
		return models.ModelPrediction{}, fmt.Errorf("%s artifact for %s holds no fitted network", a.Kind(), artifact.Ticker)
	}
	return models.ModelPrediction{
		Kind:       a.Kind(),
		Price:      params.forward(latest.Values()),
		Confidence: artifact.Confidence,
	}, nil
}

func newSeqNetParams(hidden, features int, trainX [][]float64, trainY []float64, rng *rand.Rand) *seqNetParams {
	p := &seqNetParams{
		w1:       mat.NewDense(hidden, features, nil),
		b1:       mat.NewVecDense(hidden, nil),
		w2:       mat.NewVecDense(hidden, nil),
		featMean: make([]float64, features),
		featStd:  make([]float64, features),
	}

	// Xavier-style small random init.
	scale := 1 / math.Sqrt(float64(features))
	for i := 0; i < hidden; i++ {
		for j := 0; j < features; j++ {
			p.w1.Set(i, j, (rng.Float64()*2-1)*scale)
		}
		p.w2.SetVec(i, (rng.Float64()*2-1)/math.Sqrt(float64(hidden)))
	}

	// Standardization statistics from the training split only.
	for j := 0; j < features; j++ {
		sum, sum2 := 0.0, 0.0
		for _, row := range trainX {
			sum += row[j]
			sum2 += row[j] * row[j]
		}
		nf := float64(len(trainX))
		mean := sum / nf
		variance := sum2/nf - mean*mean
		if variance < 1e-12 {
			variance = 1
		}
		p.featMean[j] = mean
		p.featStd[j] = math.Sqrt(variance)
	}
	sum, sum2 := 0.0, 0.0
	for _, v := range trainY {
		sum += v
		sum2 += v * v
	}
	nf := float64(len(trainY))
	p.yMean = sum / nf
	variance := sum2/nf - p.yMean*p.yMean
	if variance < 1e-12 {
		variance = 1
	}
	p.yStd = math.Sqrt(variance)
	return p
}

func (p *seqNetParams) standardize(row []float64) *mat.VecDense {
	x := mat.NewVecDense(len(row), nil)
	for j, v := range row {
		x.SetVec(j, (v-p.featMean[j])/p.featStd[j])
	}
	return x
}

// forward returns the denormalized price prediction for one raw row.
func (p *seqNetParams) forward(row []float64) float64 {
	_, yhat := p.activate(p.standardize(row))
	return yhat*p.yStd + p.yMean
}

// activate computes the hidden activations and normalized output.
func (p *seqNetParams) activate(x *mat.VecDense) (*mat.VecDense, float64) {
	hidden := p.b1.Len()
	a1 := mat.NewVecDense(hidden, nil)
	a1.MulVec(p.w1, x)
	a1.AddVec(a1, p.b1)
	for i := 0; i < hidden; i++ {
		a1.SetVec(i, math.Tanh(a1.AtVec(i)))
	}
	return a1, mat.Dot(p.w2, a1) + p.b2
}

// sgdStep applies one stochastic gradient step for a single sample.
func (p *seqNetParams) sgdStep(row []float64, target, lr float64) {
	x := p.standardize(row)
	a1, yhat := p.activate(x)

	e := yhat - (target-p.yMean)/p.yStd

	hidden := p.b1.Len()
	dz1 := mat.NewVecDense(hidden, nil)
	for i := 0; i < hidden; i++ {
		ai := a1.AtVec(i)
		dz1.SetVec(i, e*p.w2.AtVec(i)*(1-ai*ai))
	}

	// Output layer uses the pre-update hidden weights via dz1 above.
	p.w2.AddScaledVec(p.w2, -lr*e, a1)
	p.b2 -= lr * e

	var grad mat.Dense
	grad.Outer(lr, dz1, x)
	p.w1.Sub(p.w1, &grad)
	p.b1.AddScaledVec(p.b1, -lr, dz1)
}
