package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/modelgate/internal/errs"
)

const minimalConfig = `
ingestion:
  collection: stroke_data
schema:
  target_column: stroke
evaluation:
  bucket_name: stroke-models
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d", cfg.Version)
	}
	if cfg.Ingestion.TrainTestSplitRatio != 0.2 {
		t.Errorf("split ratio = %v, want 0.2", cfg.Ingestion.TrainTestSplitRatio)
	}
	if cfg.Evaluation.ModelKeyPath != "model.gob" {
		t.Errorf("model key = %q", cfg.Evaluation.ModelKeyPath)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format = %q", cfg.Logging.Format)
	}
	if cfg.Ingestion.Seed != nil {
		t.Errorf("seed should be unset by default")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
training:
  optimizer: adam
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !errs.Is(err, errs.CodeConfig) {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestLoadValidatesSplitRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio string
		ok    bool
	}{
		{name: "typical", ratio: "0.25", ok: true},
		{name: "one", ratio: "1", ok: false},
		{name: "negative", ratio: "-0.1", ok: false},
		{name: "above one", ratio: "1.5", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
ingestion:
  collection: stroke_data
  train_test_split_ratio: `+tt.ratio+`
schema:
  target_column: stroke
evaluation:
  bucket_name: stroke-models
`)
			_, err := Load(path)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !strings.Contains(err.Error(), "train_test_split_ratio") {
					t.Errorf("error should name the field, got %v", err)
				}
			}
		})
	}
}

func TestLoadRequiresBucketAndTarget(t *testing.T) {
	_, err := Load(writeConfig(t, `
ingestion:
  collection: stroke_data
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"schema.target_column", "evaluation.bucket_name"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s in error, got %v", field, err)
		}
	}
}

func TestLoadRejectsDroppingTarget(t *testing.T) {
	_, err := Load(writeConfig(t, `
ingestion:
  collection: stroke_data
schema:
  target_column: stroke
  drop_columns: [id, stroke]
evaluation:
  bucket_name: stroke-models
`))
	if err == nil || !strings.Contains(err.Error(), "drop_columns") {
		t.Fatalf("expected drop_columns error, got %v", err)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stores.yaml"), `
object_store:
  backend: local
  local:
    path: /var/lib/modelgate
evaluation:
  bucket_name: base-bucket
  model_key_path: base.gob
`)
	main := filepath.Join(dir, "modelgate.yaml")
	writeFile(t, main, `
$include: stores.yaml
ingestion:
  collection: stroke_data
schema:
  target_column: stroke
evaluation:
  bucket_name: override-bucket
`)
	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ObjectStore.Backend != "local" || cfg.ObjectStore.Local.Path != "/var/lib/modelgate" {
		t.Errorf("object store not merged: %+v", cfg.ObjectStore)
	}
	if cfg.Evaluation.BucketName != "override-bucket" {
		t.Errorf("bucket = %q, want override", cfg.Evaluation.BucketName)
	}
	if cfg.Evaluation.ModelKeyPath != "base.gob" {
		t.Errorf("model key = %q, want value from include", cfg.Evaluation.ModelKeyPath)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "$include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "$include: a.yaml\n")
	if _, err := LoadRaw(filepath.Join(dir, "a.yaml")); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelgate.json5")
	writeFile(t, path, `{
  // comments are allowed
  ingestion: {collection: "stroke_data", seed: 42},
  schema: {target_column: "stroke"},
  evaluation: {bucket_name: "stroke-models"},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingestion.Seed == nil || *cfg.Ingestion.Seed != 42 {
		t.Errorf("seed = %v, want 42", cfg.Ingestion.Seed)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MODELGATE_BUCKET", "env-bucket")
	cfg, err := Load(writeConfig(t, `
ingestion:
  collection: ${MODELGATE_COLLECTION:-stroke_data}
schema:
  target_column: stroke
evaluation:
  bucket_name: ${MODELGATE_BUCKET}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Evaluation.BucketName != "env-bucket" {
		t.Errorf("bucket = %q", cfg.Evaluation.BucketName)
	}
	if cfg.Ingestion.Collection != "stroke_data" {
		t.Errorf("collection = %q, want fallback", cfg.Ingestion.Collection)
	}
}

func TestLoadMergesSchemaFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "schema.yaml"), `
target_column: stroke
drop_columns: [id]
categorical_columns: [gender, work_type]
numerical_columns: [age, bmi]
`)
	main := filepath.Join(dir, "modelgate.yaml")
	writeFile(t, main, `
ingestion:
  collection: stroke_data
schema:
  file: schema.yaml
  drop_columns: [id, ever_married]
evaluation:
  bucket_name: stroke-models
`)
	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schema.TargetColumn != "stroke" {
		t.Errorf("target = %q", cfg.Schema.TargetColumn)
	}
	if len(cfg.Schema.DropColumns) != 2 {
		t.Errorf("inline drop_columns should win, got %v", cfg.Schema.DropColumns)
	}
	if len(cfg.Schema.CategoricalColumns) != 2 || len(cfg.Schema.NumericalColumns) != 2 {
		t.Errorf("schema file not merged: %+v", cfg.Schema)
	}
}

func TestPathsDerivesFromArtifactDir(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`pipeline:
  artifact_dir: /tmp/runs
training:
  model_file_path: /models/latest.gob
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	p := cfg.Paths(ts)

	wantDir := filepath.Join("/tmp/runs", "03_09_2024_14_05_07")
	if p.Dir != wantDir {
		t.Errorf("Dir = %q, want %q", p.Dir, wantDir)
	}
	if p.TrainingFilePath != filepath.Join(wantDir, "data_ingestion", "ingested", "train.csv") {
		t.Errorf("TrainingFilePath = %q", p.TrainingFilePath)
	}
	if p.FeatureStoreFilePath != filepath.Join(wantDir, "data_ingestion", "feature_store", "stroke_data.csv") {
		t.Errorf("FeatureStoreFilePath = %q", p.FeatureStoreFilePath)
	}
	if p.ModelFilePath != "/models/latest.gob" {
		t.Errorf("explicit model path should win, got %q", p.ModelFilePath)
	}
	if again := cfg.PathsIn(wantDir); again != p {
		t.Errorf("PathsIn(%q) = %+v, want %+v", wantDir, again, p)
	}
}

func TestJSONSchemaUsesYAMLNames(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", data)
	}
	for _, key := range []string{"ingestion", "object_store", "document_store"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("MODEL_BUCKET", "")
	cfg, err := Load(filepath.Join("..", "..", "examples", "modelgate.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schema.TargetColumn != "stroke" || len(cfg.Schema.CategoricalColumns) == 0 {
		t.Errorf("schema file not merged: %+v", cfg.Schema)
	}
	if cfg.Evaluation.BucketName != "stroke-models" {
		t.Errorf("bucket = %q", cfg.Evaluation.BucketName)
	}
	if cfg.DocumentStore.Mongo.ConnectTimeout != 10*time.Second {
		t.Errorf("mongo connect timeout = %v", cfg.DocumentStore.Mongo.ConnectTimeout)
	}
	if cfg.ObjectStore.Retry.MaxAttempts != 3 {
		t.Errorf("retry attempts = %d", cfg.ObjectStore.Retry.MaxAttempts)
	}
	if cfg.Observability.Tracing.Endpoint != "" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		t.Errorf("tracing endpoint = %q", cfg.Observability.Tracing.Endpoint)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelgate.yaml")
	writeFile(t, path, content)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
