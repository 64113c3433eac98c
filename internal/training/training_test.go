package training

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/ingestion"
	"github.com/haasonsaas/modelgate/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSplit writes train and test files where stroke = age >= 55.
func writeSplit(t *testing.T) *ingestion.Artifact {
	t.Helper()
	dir := t.TempDir()
	build := func(ages []int) *dataset.Dataset {
		rows := make([][]string, len(ages))
		for i, age := range ages {
			stroke := "0"
			if age >= 55 {
				stroke = "1"
			}
			gender := "Male"
			if i%2 == 0 {
				gender = "Female"
			}
			bmi := strconv.Itoa(20 + i%10)
			if i%7 == 0 {
				bmi = "N/A"
			}
			rows[i] = []string{gender, strconv.Itoa(age), bmi, stroke}
		}
		ds, err := dataset.New([]string{"gender", "age", "bmi", "stroke"}, rows)
		if err != nil {
			t.Fatalf("dataset.New: %v", err)
		}
		return ds
	}
	var trainAges, testAges []int
	for age := 20; age < 90; age++ {
		if age%5 == 0 {
			testAges = append(testAges, age)
		} else {
			trainAges = append(trainAges, age)
		}
	}
	art := &ingestion.Artifact{
		TrainedFilePath: filepath.Join(dir, "train.csv"),
		TestFilePath:    filepath.Join(dir, "test.csv"),
	}
	if err := dataset.WriteCSV(art.TrainedFilePath, build(trainAges)); err != nil {
		t.Fatal(err)
	}
	if err := dataset.WriteCSV(art.TestFilePath, build(testAges)); err != nil {
		t.Fatal(err)
	}
	return art
}

func baseConfig(t *testing.T) Config {
	return Config{
		TargetColumn:   "stroke",
		ModelFilePath:  filepath.Join(t.TempDir(), "model", "model.gob"),
		ReportFilePath: filepath.Join(t.TempDir(), "metrics.json"),
		ExpectedScore:  0.6,
		Options:        model.DefaultLogisticOptions(),
	}
}

func TestInitiateTraining(t *testing.T) {
	cfg := baseConfig(t)
	out, err := New(cfg, quietLogger()).InitiateTraining(context.Background(), writeSplit(t))
	if err != nil {
		t.Fatalf("InitiateTraining: %v", err)
	}
	if out.Metric.F1 < cfg.ExpectedScore {
		t.Errorf("F1 = %v, below expected", out.Metric.F1)
	}

	saved, err := model.LoadFile(out.ModelFilePath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if saved.Metadata.F1Score != out.Metric.F1 {
		t.Errorf("metadata F1 = %v, metric = %v", saved.Metadata.F1Score, out.Metric.F1)
	}
	ct, ok := saved.Transform.(*model.ColumnTransformer)
	if !ok {
		t.Fatalf("transform = %T", saved.Transform)
	}
	if ct.Columns[0].Kind != model.KindCategorical {
		t.Errorf("gender should be inferred categorical, got %v", ct.Columns[0].Kind)
	}

	data, err := os.ReadFile(cfg.ReportFilePath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if _, ok := report["metric_artifact"]; !ok {
		t.Errorf("report = %s", data)
	}
}

func TestInitiateTrainingWithConfiguredColumns(t *testing.T) {
	cfg := baseConfig(t)
	cfg.NumericalColumns = []string{"age"}
	out, err := New(cfg, quietLogger()).InitiateTraining(context.Background(), writeSplit(t))
	if err != nil {
		t.Fatalf("InitiateTraining: %v", err)
	}
	saved, err := model.LoadFile(out.ModelFilePath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(saved.Metadata.Features) != 1 || saved.Metadata.Features[0] != "age" {
		t.Errorf("features = %v, want [age]", saved.Metadata.Features)
	}
}

func TestInitiateTrainingBelowExpectedScore(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ExpectedScore = 1.01
	_, err := New(cfg, quietLogger()).InitiateTraining(context.Background(), writeSplit(t))
	if !errs.Is(err, errs.CodeTraining) {
		t.Fatalf("expected TRAINING_ERROR, got %v", err)
	}
	if _, statErr := os.Stat(cfg.ModelFilePath); !os.IsNotExist(statErr) {
		t.Error("a rejected model must not be saved")
	}
}

func TestInitiateTrainingMissingTarget(t *testing.T) {
	cfg := baseConfig(t)
	cfg.TargetColumn = "heart_disease"
	_, err := New(cfg, quietLogger()).InitiateTraining(context.Background(), writeSplit(t))
	if !errs.Is(err, errs.CodeTraining) || !errs.Is(err, errs.CodeSchema) {
		t.Fatalf("expected TRAINING_ERROR wrapping SCHEMA_ERROR, got %v", err)
	}
}

func TestInitiateTrainingNilArtifact(t *testing.T) {
	if _, err := New(baseConfig(t), nil).InitiateTraining(context.Background(), nil); !errs.Is(err, errs.CodeTraining) {
		t.Fatalf("expected TRAINING_ERROR, got %v", err)
	}
}

func TestInferCategorical(t *testing.T) {
	ds, _ := dataset.New([]string{"age", "work_type", "bmi"}, [][]string{
		{"61", "Private", "N/A"},
		{"45", "Self-employed", "28.5"},
	})
	got := inferCategorical(ds)
	if len(got) != 1 || got[0] != "work_type" {
		t.Errorf("inferCategorical = %v, want [work_type]", got)
	}
}
