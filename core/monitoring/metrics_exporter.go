package monitoring

import (
	"net/http"
	"time"

	"zkml-orchestrator/core/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EngineRuns counts engine invocations by job kind and outcome (completed, failed, unreachable)
	EngineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkml_engine_runs_total",
			Help: "Engine invocations by job kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// EngineDuration tracks how long the engine takes per job kind
	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zkml_engine_duration_seconds",
			Help:    "Engine run duration by job kind",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	// Verdicts counts judged results by job kind and outcome
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkml_verdicts_total",
			Help: "Verdicts by job kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// PipelineFailures counts pipeline runs that stopped in a failure state
	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkml_pipeline_failures_total",
			Help: "Pipeline failures by terminal state",
		},
		[]string{"state"},
	)

	// ParamsDownloads counts shared parameter fetches by result
	ParamsDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkml_params_downloads_total",
			Help: "Proving parameter downloads by result",
		},
		[]string{"result"},
	)

	// SettlementNotifications counts notifyWin calls by result
	SettlementNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkml_settlement_notifications_total",
			Help: "Settlement notifications by result",
		},
		[]string{"result"},
	)
)

// ObserveEngineRun records one engine invocation
func ObserveEngineRun(kind models.JobKind, outcome string, d time.Duration) {
	EngineRuns.WithLabelValues(string(kind), outcome).Inc()
	EngineDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObserveVerdict records a verdict outcome
func ObserveVerdict(kind models.JobKind, outcome models.VerdictOutcome) {
	Verdicts.WithLabelValues(string(kind), string(outcome)).Inc()
}

// ObservePipelineFailure records a terminal failure state
func ObservePipelineFailure(state models.PipelineState) {
	PipelineFailures.WithLabelValues(string(state)).Inc()
}

// Handler exposes the default registry for scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
