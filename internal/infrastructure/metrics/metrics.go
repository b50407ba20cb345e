package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentiment"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// PredictorMetrics tracks prediction outcomes.
type PredictorMetrics struct {
	Predictions       *prometheus.CounterVec
	UnmappedLabels    *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	InferenceFailures *prometheus.CounterVec
	ModelState        *prometheus.GaugeVec
}

// NewPredictorMetrics creates and registers predictor metrics on the given registry.
func NewPredictorMetrics(reg prometheus.Registerer) *PredictorMetrics {
	m := &PredictorMetrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "predictor",
			Name:      "predictions_total",
			Help:      "Predictions served, by mode and label.",
		}, []string{"mode", "label"}),
		UnmappedLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "predictor",
			Name:      "unmapped_labels_total",
			Help:      "Raw model labels missing from the label mapping.",
		}, []string{"raw_label"}),
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "predictor",
			Name:      "inference_duration_seconds",
			Help:      "Time spent producing a prediction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		InferenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "predictor",
			Name:      "inference_failures_total",
			Help:      "Model calls that failed, by kind.",
		}, []string{"kind"}),
		ModelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "state",
			Help:      "1 for the current model acquisition state (acquired or an unavailable reason).",
		}, []string{"backend", "state"}),
	}

	reg.MustRegister(m.Predictions, m.UnmappedLabels, m.InferenceDuration, m.InferenceFailures, m.ModelState)
	return m
}

// NewNopPredictorMetrics returns metrics registered on a throwaway registry, for tests.
func NewNopPredictorMetrics() *PredictorMetrics {
	return NewPredictorMetrics(prometheus.NewRegistry())
}

// HTTPMetrics holds Prometheus metrics for HTTP request tracking.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
	RateLimited     prometheus.Counter
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge, m.RateLimited)
	return m
}
