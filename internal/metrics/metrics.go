// Package metrics holds the Prometheus instruments for tool execution,
// model calls and retrieval.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level metrics, auto-registered via promauto.
var (
	// ToolCalls counts tool executions.
	//
	// Labels:
	//   - tool: tool name as requested by the model
	//   - outcome: "ok", "error", "denied", "not_found", "invalid"
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openworker",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls by outcome.",
		},
		[]string{"tool", "outcome"},
	)

	// LLMCalls counts model calls.
	//
	// Labels:
	//   - purpose: "agent", "summary", "rewrite", "embed", "rerank"
	//   - status: "success" or "error"
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openworker",
			Name:      "llm_calls_total",
			Help:      "Total number of model API calls.",
		},
		[]string{"purpose", "status"},
	)

	// RetrievalDuration measures retrieval stages.
	//
	// Labels:
	//   - stage: "index", "vector", "lexical", "rerank", "query"
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "openworker",
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of retrieval stages in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// IndexChunks is the number of chunks in the lexical index after the
	// latest rebuild.
	IndexChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "openworker",
			Name:      "index_chunks",
			Help:      "Number of chunks currently indexed.",
		},
	)
)

// Status maps an error to the status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveSince records the time elapsed since start for stage.
func ObserveSince(stage string, start time.Time) {
	RetrievalDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics.listen", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
