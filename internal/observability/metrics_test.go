package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStage(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStage("ingestion", "success", 2*time.Second)
	m.RecordStage("ingestion", "success", time.Second)
	m.RecordStage("evaluation", "error", time.Second)

	expected := `
		# HELP modelgate_stage_runs_total Total number of stage executions by stage and status
		# TYPE modelgate_stage_runs_total counter
		modelgate_stage_runs_total{stage="evaluation",status="error"} 1
		modelgate_stage_runs_total{stage="ingestion",status="success"} 2
	`
	if err := testutil.CollectAndCompare(m.StageRuns, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(m.StageDuration); count != 2 {
		t.Errorf("expected 2 duration series, got %d", count)
	}
}

func TestRecordPromotion(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPromotion(true, 0.05)
	m.RecordPromotion(false, 0)
	m.RecordPromotion(true, 0.25)

	expected := `
		# HELP modelgate_promotion_decisions_total Total number of champion/challenger decisions
		# TYPE modelgate_promotion_decisions_total counter
		modelgate_promotion_decisions_total{decision="accepted"} 2
		modelgate_promotion_decisions_total{decision="rejected"} 1
	`
	if err := testutil.CollectAndCompare(m.PromotionDecisions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if got := testutil.ToFloat64(m.ScoreDelta); got != 0.25 {
		t.Errorf("ScoreDelta = %v, want latest delta 0.25", got)
	}
}

func TestRecordScoresAndRows(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordScores(0.75, 0.8)
	m.RecordRows("train", 800)
	m.RecordRows("test", 200)

	if got := testutil.ToFloat64(m.ModelScore.WithLabelValues("champion")); got != 0.75 {
		t.Errorf("champion = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelScore.WithLabelValues("challenger")); got != 0.8 {
		t.Errorf("challenger = %v", got)
	}
	if got := testutil.ToFloat64(m.DatasetRows.WithLabelValues("test")); got != 200 {
		t.Errorf("test rows = %v", got)
	}
}

func TestRecordErrorAndRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordError("ingestion", "INGESTION_ERROR")
	m.RecordError("pusher", "")
	m.RecordRun("error", "")
	m.RecordRun("success", "accepted")

	if got := testutil.ToFloat64(m.Errors.WithLabelValues("pusher", "UNKNOWN")); got != 1 {
		t.Errorf("unknown code not recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.PipelineRuns.WithLabelValues("error", "none")); got != 1 {
		t.Errorf("run without decision = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordStage("ingestion", "success", time.Second)
	m.RecordPromotion(true, 1)
	m.RecordScores(0, 1)
	m.RecordRows("train", 1)
	m.RecordError("x", "y")
	m.RecordRun("success", "accepted")
}

func TestNewMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordRun("success", "rejected")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "modelgate_pipeline_runs_total" {
			found = true
		}
	}
	if !found {
		t.Error("pipeline runs counter not registered")
	}
}
