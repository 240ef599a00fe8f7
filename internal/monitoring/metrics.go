package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wear_report",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Analyses performed, by kind and outcome.",
	}, []string{"kind", "outcome"})
	analysisDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wear_report",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Wall time of successful analyses.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"kind"})
	samplesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wear_report",
		Subsystem: "analysis",
		Name:      "samples_total",
		Help:      "Input samples processed by successful analyses.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(analysesTotal, analysisDuration, samplesTotal)
}

// ObserveAnalysis records one analysis of the given kind over samples
// input samples.
func ObserveAnalysis(kind string, samples int, d time.Duration, err error) {
	if err != nil {
		analysesTotal.WithLabelValues(kind, OutcomeError).Inc()
		return
	}
	analysesTotal.WithLabelValues(kind, OutcomeOK).Inc()
	analysisDuration.WithLabelValues(kind).Observe(d.Seconds())
	samplesTotal.WithLabelValues(kind).Add(float64(samples))
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
