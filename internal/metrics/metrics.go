package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Comparison results recorded by ObserveComparison.
const (
	ComparisonMatch   = "match"
	ComparisonNoMatch = "no_match"
	ComparisonError   = "error"
)

// Metrics provides observability for the registration and verification workflows.
type Metrics struct {
	Registrations      prometheus.Counter
	RegistrationErrors prometheus.Counter
	Verifications      *prometheus.CounterVec
	Comparisons        *prometheus.CounterVec
	ComparisonDuration prometheus.Histogram
	VerifyDuration     prometheus.Histogram
	RegistryRecovered  prometheus.Counter
	RegistrySize       prometheus.Gauge
}

// New creates a Metrics instance registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "faceverify_registrations_total",
			Help: "Total number of registered face images",
		}),
		RegistrationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "faceverify_registration_errors_total",
			Help: "Total number of failed registrations",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceverify_verifications_total",
			Help: "Verification attempts by outcome",
		}, []string{"outcome"}),
		Comparisons: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceverify_comparisons_total",
			Help: "Pairwise verifier comparisons by result",
		}, []string{"result"}),
		ComparisonDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceverify_comparison_duration_seconds",
			Help:    "Duration of a single verifier comparison",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceverify_verify_duration_seconds",
			Help:    "Duration of a full verification scan",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RegistryRecovered: f.NewCounter(prometheus.CounterOpts{
			Name: "faceverify_registry_recovered_total",
			Help: "Number of loads that discarded a malformed registry document",
		}),
		RegistrySize: f.NewGauge(prometheus.GaugeOpts{
			Name: "faceverify_registry_size",
			Help: "Number of registered faces seen at the last load",
		}),
	}
}

// ObserveComparison records one verifier call started at start.
func (m *Metrics) ObserveComparison(result string, start time.Time) {
	m.Comparisons.WithLabelValues(result).Inc()
	m.ComparisonDuration.Observe(time.Since(start).Seconds())
}

// ObserveVerification records a finished verification with the given outcome.
func (m *Metrics) ObserveVerification(outcome string, start time.Time) {
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
