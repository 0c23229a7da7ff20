package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions *prometheus.CounterVec
	trainings   *prometheus.HistogramVec
	cacheOps    *prometheus.CounterVec
	alertsFired *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_predictions_total",
				Help: "Total ensemble predictions computed",
			},
			[]string{"ticker", "degraded"},
		),
		trainings: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsight_model_training_seconds",
				Help:    "Model training duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind", "result"},
		),
		cacheOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_cache_requests_total",
				Help: "Cache lookups by cache and outcome",
			},
			[]string{"cache", "outcome"},
		),
		alertsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_alerts_fired_total",
				Help: "Alert rules fired",
			},
			[]string{"ticker"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsight_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsight_last_price",
				Help: "Last observed price for a ticker",
			},
			[]string{"ticker"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsight_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPrediction records one computed ensemble result.
func (r *Recorder) RecordPrediction(ticker string, degraded bool) {
	d := "false"
	if degraded {
		d = "true"
	}
	r.predictions.WithLabelValues(ticker, d).Inc()
}

// RecordTraining records a model training run.
func (r *Recorder) RecordTraining(kind string, seconds float64, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	r.trainings.WithLabelValues(kind, result).Observe(seconds)
}

// RecordCache records a cache lookup outcome.
func (r *Recorder) RecordCache(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheOps.WithLabelValues(cache, outcome).Inc()
}

// RecordAlert records a fired alert rule.
func (r *Recorder) RecordAlert(ticker string) {
	r.alertsFired.WithLabelValues(ticker).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
