// Package telemetry registers the process metrics and serves them.
package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rutkit/internal/logging"
	"rutkit/pkg/rut"
)

var (
	evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rutkit_evaluations_total",
		Help: "RUT values evaluated, by outcome (valid, invalid, empty).",
	}, []string{"outcome"})

	stageCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rutkit_stage_calls_total",
		Help: "Transformer stage calls by stage and resulting status.",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rutkit_stage_duration_seconds",
		Help:    "Latency of transformer stage calls, retries included.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"stage"})

	framesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rutkit_frames_pushed_total",
		Help: "Frames handed to sinks.",
	}, []string{"sink"})
)

// Outcome names the bucket a result falls into.
func Outcome(r rut.Result) string {
	switch {
	case r.Empty():
		return "empty"
	case r.Valid:
		return "valid"
	default:
		return "invalid"
	}
}

// ObserveEvaluation counts one evaluated value.
func ObserveEvaluation(r rut.Result) {
	evaluations.WithLabelValues(Outcome(r)).Inc()
}

// ObserveStage records one stage call.
func ObserveStage(stage, status string, took time.Duration) {
	stageCalls.WithLabelValues(stage, status).Inc()
	stageLatency.WithLabelValues(stage).Observe(took.Seconds())
}

// ObservePush counts a frame handed to a sink.
func ObservePush(sink string) {
	framesOut.WithLabelValues(sink).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Expose serves /metrics on port in the background. The returned server can
// be shut down by the caller.
func Expose(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("telemetry: metrics server stopped", "addr", srv.Addr, "err", err)
		}
	}()
	return srv
}
