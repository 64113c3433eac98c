package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/haasonsaas/modelgate/internal/config"
	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/errs"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "ingest", "train", "evaluate", "push", "schedule", "model", "config"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeCLIConfig writes a config backed by the local object store.
func writeCLIConfig(t *testing.T) (configPath, storeDir string) {
	t.Helper()
	dir := t.TempDir()
	storeDir = filepath.Join(dir, "store")
	configPath = filepath.Join(dir, "modelgate.yaml")
	body := fmt.Sprintf(`
pipeline:
  artifact_dir: %s
ingestion:
  collection: stroke_data
schema:
  target_column: stroke
training:
  expected_score: 0.5
evaluation:
  bucket_name: models
  model_key_path: prod/model.gob
document_store:
  backend: memory
object_store:
  backend: local
  local:
    path: %s
logging:
  level: error
`, filepath.Join(dir, "artifact"), storeDir)
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return configPath, storeDir
}

// writeRunDir lays out a train/test split the way ingest would.
func writeRunDir(t *testing.T, configPath string) string {
	t.Helper()
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	runDir := filepath.Join(t.TempDir(), "run")
	paths := cfg.PathsIn(runDir)

	var train, test [][]string
	for age := 20; age < 80; age++ {
		stroke := "0"
		if age >= 50 {
			stroke = "1"
		}
		row := []string{[]string{"Male", "Female"}[age%2], strconv.Itoa(age), stroke}
		if age%5 == 0 {
			test = append(test, row)
		} else {
			train = append(train, row)
		}
	}
	columns := []string{"gender", "age", "stroke"}
	for path, rows := range map[string][][]string{paths.TrainingFilePath: train, paths.TestingFilePath: test} {
		ds, err := dataset.New(columns, rows)
		if err != nil {
			t.Fatal(err)
		}
		if err := dataset.WriteCSV(path, ds); err != nil {
			t.Fatal(err)
		}
	}
	return runDir
}

func TestStageCommandsPromoteModel(t *testing.T) {
	configPath, storeDir := writeCLIConfig(t)
	runDir := writeRunDir(t, configPath)

	if _, err := execute(t, "train", "-c", configPath, "--run-dir", runDir); err != nil {
		t.Fatalf("train: %v", err)
	}

	out, err := execute(t, "evaluate", "-c", configPath, "--run-dir", runDir)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var evaluated struct {
		Accepted bool `json:"is_model_accepted"`
	}
	if err := json.Unmarshal([]byte(out), &evaluated); err != nil {
		t.Fatalf("evaluate output is not JSON: %v\n%s", err, out)
	}
	if !evaluated.Accepted {
		t.Fatalf("first model should be accepted: %s", out)
	}

	if _, err := execute(t, "push", "-c", configPath, "--run-dir", runDir); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := os.Stat(filepath.Join(storeDir, "models", "prod", "model.gob")); err != nil {
		t.Fatalf("model not uploaded: %v", err)
	}

	out, err = execute(t, "model", "exists", "-c", configPath)
	if err != nil || !strings.HasPrefix(out, "present:") {
		t.Fatalf("model exists = %q, %v", out, err)
	}

	cfg, _ := config.Load(configPath)
	out, err = execute(t, "model", "predict", "-c", configPath, "--input", cfg.PathsIn(runDir).TestingFilePath)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	scored, err := dataset.DecodeCSV(strings.NewReader(out))
	if err != nil {
		t.Fatalf("predict output: %v\n%s", err, out)
	}
	if scored.Index("prediction") < 0 || scored.Len() != 12 {
		t.Errorf("scored = %v columns, %d rows", scored.Columns, scored.Len())
	}
}

func TestEvaluateWithoutTrainingReport(t *testing.T) {
	configPath, _ := writeCLIConfig(t)
	_, err := execute(t, "evaluate", "-c", configPath, "--run-dir", t.TempDir())
	if !errs.Is(err, errs.CodeEvaluation) {
		t.Fatalf("expected EVALUATION_ERROR, got %v", err)
	}
}

func TestModelExistsAbsent(t *testing.T) {
	configPath, _ := writeCLIConfig(t)
	out, err := execute(t, "model", "exists", "-c", configPath)
	if err != nil || !strings.HasPrefix(out, "absent:") {
		t.Fatalf("model exists = %q, %v", out, err)
	}
}

func TestConfigCommands(t *testing.T) {
	configPath, _ := writeCLIConfig(t)
	out, err := execute(t, "config", "validate", "-c", configPath)
	if err != nil || !strings.Contains(out, "collection=stroke_data") {
		t.Fatalf("validate = %q, %v", out, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("ingestion:\n  collection: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "validate", "-c", bad); !errs.Is(err, errs.CodeConfig) {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}

	out, err = execute(t, "config", "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("schema output is not JSON: %v", err)
	}
}

func TestResolveSchedulePrefersFlags(t *testing.T) {
	cfg := &config.Config{Schedule: config.ScheduleConfig{Cron: "@daily", Timezone: "UTC"}}

	s, err := resolveSchedule(cfg, scheduleOptions{})
	if err != nil || s.Expr != "@daily" {
		t.Fatalf("resolveSchedule = %+v, %v", s, err)
	}
	s, err = resolveSchedule(cfg, scheduleOptions{cron: "0 3 * * *"})
	if err != nil || s.Expr != "0 3 * * *" || s.Timezone != "UTC" {
		t.Fatalf("resolveSchedule = %+v, %v", s, err)
	}
	if _, err := resolveSchedule(&config.Config{}, scheduleOptions{}); !errs.Is(err, errs.CodeConfig) {
		t.Errorf("missing cron should be a config error, got %v", err)
	}
}

func TestWithPredictions(t *testing.T) {
	ds, _ := dataset.New([]string{"age"}, [][]string{{"61"}, {"30"}})
	out, err := withPredictions(ds, []int{1, 0})
	if err != nil {
		t.Fatalf("withPredictions: %v", err)
	}
	if out.Rows[0][1] != "1" || out.Rows[1][1] != "0" {
		t.Errorf("rows = %v", out.Rows)
	}
	if len(ds.Columns) != 1 {
		t.Error("input dataset was modified")
	}
	if _, err := withPredictions(ds, []int{1}); err == nil {
		t.Error("expected length mismatch error")
	}
}
