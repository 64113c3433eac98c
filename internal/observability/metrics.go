package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for pipeline runs.
type Metrics struct {
	// StageDuration measures stage wall time in seconds.
	// Labels: stage (ingestion|training|evaluation|pusher)
	StageDuration *prometheus.HistogramVec

	// StageRuns counts stage executions.
	// Labels: stage, status (success|error)
	StageRuns *prometheus.CounterVec

	// PipelineRuns counts complete runs.
	// Labels: status (success|error), decision (accepted|rejected|none)
	PipelineRuns *prometheus.CounterVec

	// PromotionDecisions counts champion/challenger outcomes.
	// Labels: decision (accepted|rejected)
	PromotionDecisions *prometheus.CounterVec

	// ModelScore is the latest F1 observed per role.
	// Labels: role (champion|challenger)
	ModelScore *prometheus.GaugeVec

	// ScoreDelta is challenger minus champion from the latest evaluation.
	ScoreDelta prometheus.Gauge

	// DatasetRows is the row count of the latest ingested split.
	// Labels: split (feature_store|train|test)
	DatasetRows *prometheus.GaugeVec

	// Errors counts failures by stage and error code.
	Errors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// means the Prometheus default registerer, which can only be done once per
// process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelgate_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"stage"},
		),
		StageRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_stage_runs_total",
				Help: "Total number of stage executions by stage and status",
			},
			[]string{"stage", "status"},
		),
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_pipeline_runs_total",
				Help: "Total number of pipeline runs by status and promotion decision",
			},
			[]string{"status", "decision"},
		),
		PromotionDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_promotion_decisions_total",
				Help: "Total number of champion/challenger decisions",
			},
			[]string{"decision"},
		),
		ModelScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelgate_model_f1_score",
				Help: "F1 score of the latest evaluated models by role",
			},
			[]string{"role"},
		),
		ScoreDelta: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelgate_model_score_delta",
				Help: "Challenger F1 minus champion F1 from the latest evaluation",
			},
		),
		DatasetRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelgate_dataset_rows",
				Help: "Row count of the latest ingested dataset by split",
			},
			[]string{"split"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_errors_total",
				Help: "Total number of errors by stage and error code",
			},
			[]string{"stage", "code"},
		),
	}
}

// RecordStage records one stage execution.
func (m *Metrics) RecordStage(stage, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordPromotion records an evaluation outcome and its score delta.
func (m *Metrics) RecordPromotion(accepted bool, delta float64) {
	if m == nil {
		return
	}
	m.PromotionDecisions.WithLabelValues(decisionLabel(accepted)).Inc()
	m.ScoreDelta.Set(delta)
}

// RecordScores sets the champion and challenger score gauges. A missing
// champion is reported as zero.
func (m *Metrics) RecordScores(champion, challenger float64) {
	if m == nil {
		return
	}
	m.ModelScore.WithLabelValues("champion").Set(champion)
	m.ModelScore.WithLabelValues("challenger").Set(challenger)
}

// RecordRows sets the row gauge for a split.
func (m *Metrics) RecordRows(split string, rows int) {
	if m == nil {
		return
	}
	m.DatasetRows.WithLabelValues(split).Set(float64(rows))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(stage, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "UNKNOWN"
	}
	m.Errors.WithLabelValues(stage, code).Inc()
}

// RecordRun records a finished pipeline run. decision is empty when the
// run stopped before evaluation.
func (m *Metrics) RecordRun(status, decision string) {
	if m == nil {
		return
	}
	if decision == "" {
		decision = "none"
	}
	m.PipelineRuns.WithLabelValues(status, decision).Inc()
}

func decisionLabel(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}
