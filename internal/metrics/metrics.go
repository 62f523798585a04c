// Package metrics wires the session's key measurements to Prometheus:
// sessions in flight, per-stage latency, cursor progress, and errors
// by kind.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trueprompter_sessions_active",
		Help: "Currently connected teleprompter sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trueprompter_sessions_total",
		Help: "Total teleprompter sessions handled",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trueprompter_stage_duration_seconds",
		Help:    "Per-stage latency (recognize_and_match)",
		Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
	}, []string{"stage"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trueprompter_audio_chunks_processed_total",
		Help: "Total audio_data requests decoded",
	})

	CursorAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trueprompter_cursor_advances_total",
		Help: "Total accepted sub-target matches across all sessions",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trueprompter_errors_total",
		Help: "Session-terminal errors by kind",
	}, []string{"kind"})
)
