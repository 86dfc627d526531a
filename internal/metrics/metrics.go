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

var (
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchoredit_tool_invocations_total",
		Help: "Tool calls executed by tool and outcome",
	}, []string{"tool", "outcome"})

	ApprovalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchoredit_approval_decisions_total",
		Help: "Human decisions on proposed edits by decision and result",
	}, []string{"decision", "result"})

	ModelRoundLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anchoredit_model_round_seconds",
		Help:    "Latency of one model send",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model", "outcome"})

	ModelTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchoredit_model_tokens_total",
		Help: "Tokens reported by the model by direction",
	}, []string{"model", "direction"})
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePending = "pending"
)

// ObserveModelRound records one model send.
func ObserveModelRound(model string, started time.Time, err error, inputTokens, outputTokens int) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	ModelRoundLatency.WithLabelValues(model, outcome).Observe(time.Since(started).Seconds())
	if inputTokens > 0 {
		ModelTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		ModelTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// Serve exposes /metrics on addr until ctx is done.
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
	logger.Info("metrics.listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
