// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Completion outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeTransportError = "transport_error"
	OutcomeRemoteError    = "remote_error"
)

// Dispatch paths
const (
	PathCommand     = "command"
	PathMiddleware  = "middleware"
	PathIgnored     = "ignored"
	PathRateLimited = "rate_limited"
)

var (
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_completions_total",
			Help: "Total number of completion calls by outcome",
		},
		[]string{"model", "outcome"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_completion_duration_seconds",
			Help:    "Completion call duration in seconds, retries included",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	CompletionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_completion_retries_total",
			Help: "Total number of retried completion attempts",
		},
		[]string{"model"},
	)

	CompletionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_completions_in_flight",
			Help: "Completion calls currently holding a concurrency slot",
		},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_tokens_total",
			Help: "Total number of tokens reported by the endpoint",
		},
		[]string{"model", "type"},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dispatch_total",
			Help: "Inbound messages by dispatch path",
		},
		[]string{"path"},
	)

	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_renders_total",
			Help: "Picture mode renders by outcome",
		},
		[]string{"outcome"},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_render_duration_seconds",
			Help:    "Picture mode render duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

func RecordCompletion(model, outcome string, durationSeconds float64) {
	CompletionsTotal.WithLabelValues(model, outcome).Inc()
	CompletionDuration.WithLabelValues(model).Observe(durationSeconds)
}

func RecordRetry(model string) {
	CompletionRetries.WithLabelValues(model).Inc()
}

func RecordTokens(model string, prompt, completion int) {
	TokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	TokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
}

func RecordDispatch(path string) {
	DispatchTotal.WithLabelValues(path).Inc()
}

func RecordRender(success bool, durationSeconds float64) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	RendersTotal.WithLabelValues(outcome).Inc()
	RenderDuration.Observe(durationSeconds)
}
