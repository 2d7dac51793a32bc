// Package metrics holds the Prometheus collectors of the prediction API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oncycle"

type Collectors struct {
	Predictions        *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	BatchItems         *prometheus.CounterVec
	FeatureLookups     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Predictions:        PredictionCount(),
		PredictionDuration: PredictionDuration(),
		BatchItems:         BatchItemCount(),
		FeatureLookups:     FeatureLookupCount(),
	}
	if reg != nil {
		reg.MustRegister(c.Predictions, c.PredictionDuration, c.BatchItems, c.FeatureLookups)
	}
	return c
}

// PredictionCount counts single-station predictions by outcome
// (success, failure, not_ready).
func PredictionCount() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of single station predictions.",
		},
		[]string{"outcome"},
	)
}

// PredictionDuration measures end-to-end prediction latency, feature lookup
// included.
func PredictionDuration() prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_duration_seconds",
		Help:      "Duration of a single station prediction.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})
}

// BatchItemCount counts batch entries by outcome (success, failure).
func BatchItemCount() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Total number of batch prediction items.",
		},
		[]string{"outcome"},
	)
}

// FeatureLookupCount counts feature store lookups by result (hit, miss, error).
func FeatureLookupCount() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_lookups_total",
			Help:      "Total number of feature store lookups.",
		},
		[]string{"result"},
	)
}
