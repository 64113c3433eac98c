package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/modelgate/internal/docstore"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/objectstore"
)

// Config is the main configuration structure for modelgate.
type Config struct {
	Version       int                 `yaml:"version"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Schema        SchemaConfig        `yaml:"schema"`
	Training      TrainingConfig      `yaml:"training"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Pusher        PusherConfig        `yaml:"pusher"`
	DocumentStore docstore.Config     `yaml:"document_store"`
	ObjectStore   objectstore.Config  `yaml:"object_store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
}

type PipelineConfig struct {
	Name string `yaml:"name"`
	// ArtifactDir is the root under which each run gets a timestamped
	// directory. Stage paths left empty are derived from it.
	ArtifactDir string `yaml:"artifact_dir"`
}

type IngestionConfig struct {
	Collection           string  `yaml:"collection"`
	FeatureStoreFilePath string  `yaml:"feature_store_file_path"`
	TrainingFilePath     string  `yaml:"training_file_path"`
	TestingFilePath      string  `yaml:"testing_file_path"`
	TrainTestSplitRatio  float64 `yaml:"train_test_split_ratio"`
	// Seed fixes the train/test partition; nil draws a fresh one each run.
	Seed *int64 `yaml:"seed"`
}

// SchemaConfig names the dataset columns. When File is set, its contents
// fill any field left empty here.
type SchemaConfig struct {
	File               string   `yaml:"file"`
	TargetColumn       string   `yaml:"target_column"`
	DropColumns        []string `yaml:"drop_columns"`
	CategoricalColumns []string `yaml:"categorical_columns"`
	NumericalColumns   []string `yaml:"numerical_columns"`
}

type TrainingConfig struct {
	ModelFilePath  string  `yaml:"model_file_path"`
	ExpectedScore  float64 `yaml:"expected_score"`
	Epochs         int     `yaml:"epochs"`
	LearningRate   float64 `yaml:"learning_rate"`
	L2             float64 `yaml:"l2"`
	ClassWeighted  *bool   `yaml:"class_weighted"`
	ReportFilePath string  `yaml:"report_file_path"`
}

type EvaluationConfig struct {
	BucketName     string `yaml:"bucket_name"`
	ModelKeyPath   string `yaml:"model_key_path"`
	ReportFilePath string `yaml:"report_file_path"`
}

type PusherConfig struct {
	// RemoveLocal deletes the trained model file after a confirmed upload.
	RemoveLocal bool `yaml:"remove_local"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// Load reads, defaults, and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, errs.Config("failed to read config file", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, errs.Config("failed to decode config", err)
	}
	applyDefaults(cfg)

	if cfg.Schema.File != "" {
		schemaPath := cfg.Schema.File
		if !filepath.IsAbs(schemaPath) {
			schemaPath = filepath.Join(filepath.Dir(path), schemaPath)
		}
		if err := mergeSchemaFile(&cfg.Schema, schemaPath); err != nil {
			return nil, errs.Config("failed to load schema file", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Pipeline.Name == "" {
		cfg.Pipeline.Name = "modelgate"
	}
	if cfg.Pipeline.ArtifactDir == "" {
		cfg.Pipeline.ArtifactDir = "artifact"
	}
	if cfg.Ingestion.TrainTestSplitRatio == 0 {
		cfg.Ingestion.TrainTestSplitRatio = 0.2
	}
	if cfg.Training.ExpectedScore == 0 {
		cfg.Training.ExpectedScore = 0.1
	}
	if cfg.Training.Epochs == 0 {
		cfg.Training.Epochs = 500
	}
	if cfg.Training.LearningRate == 0 {
		cfg.Training.LearningRate = 0.1
	}
	if cfg.Evaluation.ModelKeyPath == "" {
		cfg.Evaluation.ModelKeyPath = "model.gob"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
}

// Validate checks the invariants every stage relies on.
func Validate(cfg *Config) error {
	var issues []string
	if err := ValidateVersion(cfg.Version); err != nil {
		issues = append(issues, err.Error())
	}
	if strings.TrimSpace(cfg.Ingestion.Collection) == "" {
		issues = append(issues, "ingestion.collection is required")
	}
	if r := cfg.Ingestion.TrainTestSplitRatio; r <= 0 || r >= 1 {
		issues = append(issues, fmt.Sprintf("ingestion.train_test_split_ratio must be in (0, 1), got %v", r))
	}
	if strings.TrimSpace(cfg.Schema.TargetColumn) == "" {
		issues = append(issues, "schema.target_column is required")
	}
	for _, c := range cfg.Schema.DropColumns {
		if c == cfg.Schema.TargetColumn {
			issues = append(issues, fmt.Sprintf("schema.drop_columns must not include the target column %q", c))
		}
	}
	if strings.TrimSpace(cfg.Evaluation.BucketName) == "" {
		issues = append(issues, "evaluation.bucket_name is required")
	}
	if strings.TrimSpace(cfg.Evaluation.ModelKeyPath) == "" {
		issues = append(issues, "evaluation.model_key_path is required")
	}
	if s := cfg.Training.ExpectedScore; s < 0 || s > 1 {
		issues = append(issues, fmt.Sprintf("training.expected_score must be in [0, 1], got %v", s))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format must be json or text, got %q", cfg.Logging.Format))
	}
	if len(issues) > 0 {
		return errs.Config("invalid config", fmt.Errorf("%s", strings.Join(issues, "; ")))
	}
	return nil
}

// RunPaths are the concrete file locations for one pipeline run.
type RunPaths struct {
	Dir                  string
	FeatureStoreFilePath string
	TrainingFilePath     string
	TestingFilePath      string
	ModelFilePath        string
	TrainingReportPath   string
	EvaluationReportPath string
	RunReportPath        string
}

// RunDirLayout is the timestamp format of per-run directory names.
const RunDirLayout = "01_02_2006_15_04_05"

// Paths resolves stage file locations for a run started at ts.
func (c *Config) Paths(ts time.Time) RunPaths {
	return c.PathsIn(filepath.Join(c.Pipeline.ArtifactDir, ts.UTC().Format(RunDirLayout)))
}

// PathsIn resolves stage file locations under an existing run directory.
// Paths set explicitly in the config win over derived ones.
func (c *Config) PathsIn(dir string) RunPaths {
	pick := func(explicit string, parts ...string) string {
		if explicit != "" {
			return explicit
		}
		return filepath.Join(append([]string{dir}, parts...)...)
	}
	return RunPaths{
		Dir:                  dir,
		FeatureStoreFilePath: pick(c.Ingestion.FeatureStoreFilePath, "data_ingestion", "feature_store", c.Ingestion.Collection+".csv"),
		TrainingFilePath:     pick(c.Ingestion.TrainingFilePath, "data_ingestion", "ingested", "train.csv"),
		TestingFilePath:      pick(c.Ingestion.TestingFilePath, "data_ingestion", "ingested", "test.csv"),
		ModelFilePath:        pick(c.Training.ModelFilePath, "model_trainer", "trained_model", "model.gob"),
		TrainingReportPath:   pick(c.Training.ReportFilePath, "model_trainer", "metrics.json"),
		EvaluationReportPath: pick(c.Evaluation.ReportFilePath, "model_evaluation", "report.json"),
		RunReportPath:        filepath.Join(dir, "run.json"),
	}
}
