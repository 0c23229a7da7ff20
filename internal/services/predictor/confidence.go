package predictor

import (
	"math"

	domsvc "FinSight/internal/domain/service"
)

// ConfidenceConfig holds the calibration knobs for the per-kind scoring
// strategies. The magnitudes are deployment tuning, not code.
type ConfidenceConfig struct {
	ForestCalibration  float64 // scales relative OOB spread; higher = stricter
	BoostPrior         float64 // high-trust prior for the boosted model
	BoostRMSEThreshold float64 // relative validation RMSE where trust decays
	SeqNetScale        float64 // steepness of inverse-loss normalization
}

// DefaultConfidenceConfig returns sane calibration defaults.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		ForestCalibration:  10.0,
		BoostPrior:         0.85,
		BoostRMSEThreshold: 0.02,
		SeqNetScale:        25.0,
	}
}

// forestConfidence scores the tree ensemble from out-of-bag prediction
// variance: tight OOB agreement relative to the price scale means the
// trees generalize consistently.
type forestConfidence struct{ calibration float64 }

// NewForestConfidence builds the tree-ensemble scoring strategy.
func NewForestConfidence(cfg ConfidenceConfig) domsvc.ConfidenceScorer {
	return forestConfidence{calibration: cfg.ForestCalibration}
}

func (s forestConfidence) Score(d domsvc.TrainingDiagnostics) float64 {
	if d.TargetScale <= 0 {
		return 0.5
	}
	rel := math.Sqrt(d.OOBVariance) / d.TargetScale
	c := 1 - s.calibration*rel
	if c < 0.05 {
		return 0.05
	}
	return clampUnit(c)
}

// boostConfidence keeps a fixed high-trust prior unless validation error
// exceeds the configured threshold, then decays proportionally.
type boostConfidence struct {
	prior     float64
	threshold float64
}

// NewBoostConfidence builds the boosted-tree scoring strategy.
func NewBoostConfidence(cfg ConfidenceConfig) domsvc.ConfidenceScorer {
	return boostConfidence{prior: cfg.BoostPrior, threshold: cfg.BoostRMSEThreshold}
}

func (s boostConfidence) Score(d domsvc.TrainingDiagnostics) float64 {
	if d.TargetScale <= 0 {
		return s.prior
	}
	rel := d.ValidationRMSE / d.TargetScale
	if rel <= s.threshold {
		return s.prior
	}
	return clampUnit(s.prior * s.threshold / rel)
}

// seqNetConfidence maps validation loss through an inverse curve to [0,1].
type seqNetConfidence struct{ scale float64 }

// NewSeqNetConfidence builds the sequence-network scoring strategy.
func NewSeqNetConfidence(cfg ConfidenceConfig) domsvc.ConfidenceScorer {
	return seqNetConfidence{scale: cfg.SeqNetScale}
}

func (s seqNetConfidence) Score(d domsvc.TrainingDiagnostics) float64 {
	if d.TargetScale <= 0 {
		return 0.5
	}
	rel := d.ValidationRMSE / d.TargetScale
	return clampUnit(1 / (1 + s.scale*rel))
}
