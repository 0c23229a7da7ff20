package predictor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
)

// ForestAdapter is the tree-ensemble variant: a random forest of shallow
// regression trees with bootstrap sampling and out-of-bag diagnostics.
type ForestAdapter struct {
	trees    int
	maxDepth int
	minLeaf  int
	scorer   domsvc.ConfidenceScorer
}

// NewForestAdapter builds the tree-ensemble adapter.
func NewForestAdapter(scorer domsvc.ConfidenceScorer) *ForestAdapter {
	return &ForestAdapter{
		trees:    50,
		maxDepth: 6,
		minLeaf:  5,
		scorer:   scorer,
	}
}

func (a *ForestAdapter) Kind() models.ModelKind { return models.KindTreeEnsemble }

type forestParams struct {
	trees []*treeNode
}

// Train fits the forest and attaches a confidence derived from out-of-bag
// prediction variance.
func (a *ForestAdapter) Train(ctx context.Context, ticker string, vectors []models.FeatureVector, targets []float64) (*models.ModelArtifact, error) {
	n := len(vectors)
	if n < MinTrainingSamples || len(targets) != n {
		return nil, fmt.Errorf("%w: %s/%s has %d samples, need %d", models.ErrInsufficientSamples, ticker, a.Kind(), n, MinTrainingSamples)
	}

	x := designMatrix(vectors)
	rng := rand.New(rand.NewSource(seedFor(ticker, a.Kind(), n)))

	trees := make([]*treeNode, 0, a.trees)
	oobPreds := make([][]float64, n) // per-row predictions by trees that never saw the row
	for t := 0; t < a.trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, inBag := bootstrap(n, rng)
		tree := buildTree(x, targets, idx, 0, a.maxDepth, a.minLeaf, rng)
		trees = append(trees, tree)
		for i := 0; i < n; i++ {
			if !inBag[i] {
				oobPreds[i] = append(oobPreds[i], tree.predict(x[i]))
			}
		}
	}

	diag := domsvc.TrainingDiagnostics{
		OOBVariance: oobVariance(oobPreds),
		TargetScale: targetScale(targets),
	}

	return &models.ModelArtifact{
		Ticker:      ticker,
		Kind:        a.Kind(),
		SampleCount: n,
		TrainedAt:   time.Now(),
		Confidence:  a.scorer.Score(diag),
		Params:      &forestParams{trees: trees},
	}, nil
}

// Predict averages the trees' outputs for the latest feature vector.
func (a *ForestAdapter) Predict(artifact *models.ModelArtifact, latest models.FeatureVector) (models.ModelPrediction, error) {
	params, ok := artifact.Params.(*forestParams)
	if !ok || len(params.trees) == 0 {
		return models.ModelPrediction{}, fmt.Errorf("%s artifact for %s holds no fitted forest", a.Kind(), artifact.Ticker)
	}
	row := latest.Values()
	sum := 0.0
	for _, t := range params.trees {
		sum += t.predict(row)
	}
	return models.ModelPrediction{
		Kind:       a.Kind(),
		Price:      sum / float64(len(params.trees)),
		Confidence: artifact.Confidence,
	}, nil
}

// bootstrap draws n rows with replacement and reports which rows stayed in.
func bootstrap(n int, rng *rand.Rand) (idx []int, inBag []bool) {
	idx = make([]int, n)
	inBag = make([]bool, n)
	for i := range idx {
		j := rng.Intn(n)
		idx[i] = j
		inBag[j] = true
	}
	return idx, inBag
}

// oobVariance averages the across-tree prediction variance over all rows
// with at least two out-of-bag votes.
func oobVariance(preds [][]float64) float64 {
	sum, count := 0.0, 0
	for _, p := range preds {
		if len(p) < 2 {
			continue
		}
		sum += stat.Variance(p, nil)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// treeNode is one node of a regression tree. Leaves carry the mean target.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (t *treeNode) predict(row []float64) float64 {
	for !t.leaf {
		if row[t.feature] <= t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

func buildTree(x [][]float64, y []float64, idx []int, depth, maxDepth, minLeaf int, rng *rand.Rand) *treeNode {
	if depth >= maxDepth || len(idx) < 2*minLeaf {
		return leafNode(y, idx)
	}

	feature, threshold, ok := bestSplit(x, y, idx, rng)
	if !ok {
		return leafNode(y, idx)
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < minLeaf || len(right) < minLeaf {
		return leafNode(y, idx)
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      buildTree(x, y, left, depth+1, maxDepth, minLeaf, rng),
		right:     buildTree(x, y, right, depth+1, maxDepth, minLeaf, rng),
	}
}

func leafNode(y []float64, idx []int) *treeNode {
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return &treeNode{leaf: true, value: sum / float64(len(idx))}
}

// bestSplit searches a random subset of features (n/3) with randomly
// sampled thresholds and picks the split minimizing weighted SSE.
func bestSplit(x [][]float64, y []float64, idx []int, rng *rand.Rand) (feature int, threshold float64, ok bool) {
	nFeatures := len(x[idx[0]])
	mtry := nFeatures / 3
	if mtry < 1 {
		mtry = 1
	}
	const thresholdCandidates = 10

	best := sse(y, idx)
	if best == 0 {
		return 0, 0, false
	}

	perm := rng.Perm(nFeatures)
	for _, f := range perm[:mtry] {
		for c := 0; c < thresholdCandidates; c++ {
			th := x[idx[rng.Intn(len(idx))]][f]
			cost, valid := splitCost(x, y, idx, f, th)
			if valid && cost < best {
				best, feature, threshold, ok = cost, f, th, true
			}
		}
	}
	return feature, threshold, ok
}

func splitCost(x [][]float64, y []float64, idx []int, feature int, threshold float64) (float64, bool) {
	var lSum, lSum2, rSum, rSum2 float64
	var lN, rN int
	for _, i := range idx {
		v := y[i]
		if x[i][feature] <= threshold {
			lSum += v
			lSum2 += v * v
			lN++
		} else {
			rSum += v
			rSum2 += v * v
			rN++
		}
	}
	if lN == 0 || rN == 0 {
		return 0, false
	}
	lCost := lSum2 - lSum*lSum/float64(lN)
	rCost := rSum2 - rSum*rSum/float64(rN)
	return lCost + rCost, true
}

func sse(y []float64, idx []int) float64 {
	var sum, sum2 float64
	for _, i := range idx {
		sum += y[i]
		sum2 += y[i] * y[i]
	}
	return sum2 - sum*sum/float64(len(idx))
}
