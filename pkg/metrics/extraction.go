package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExtractionMetrics records outcomes of the receipt extraction pipeline.
type ExtractionMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
}

// NewExtractionMetrics registers the extraction metrics on the provided registerer.
func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	if reg == nil {
		return &ExtractionMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_extraction_duration_seconds",
		Help:    "Duration of receipt extraction attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_extraction_total",
		Help: "Receipt extraction attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, processed)
	return &ExtractionMetrics{
		duration:  duration,
		processed: processed,
	}
}

// Observe records one extraction attempt with its outcome label.
func (m *ExtractionMetrics) Observe(outcome string, duration time.Duration) {
	if m == nil || m.processed == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.processed.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
}
