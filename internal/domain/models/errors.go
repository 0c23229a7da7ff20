package models

import "errors"

// Engine error taxonomy. Callers classify with errors.Is; everything not
// listed here degrades internally and never reaches the serving layer.
var (
	// ErrInsufficientHistory: too few bars to compute the feature warm-up.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInsufficientSamples: too few training rows for one model variant.
	// Degrades that variant out of the ensemble for the cycle, not fatal.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrNoModelAvailable: every model variant failed. Fatal per request.
	ErrNoModelAvailable = errors.New("no model available")

	// ErrDataProvider: bar fetch failed after retries were exhausted.
	ErrDataProvider = errors.New("data provider failure")

	// ErrTrainingTimeout: bounded wait on an in-flight training expired.
	// The training itself keeps running for other waiters.
	ErrTrainingTimeout = errors.New("training timeout")
)
