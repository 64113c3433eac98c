// Package training fits the challenger model on the ingested train set and
// records its score on the held-out test set.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/ingestion"
	"github.com/haasonsaas/modelgate/internal/model"
)

// Config holds the training inputs.
type Config struct {
	TargetColumn string
	// Feature columns. When both are empty every non-target column is used
	// and columns that do not parse as numbers are treated as categorical.
	NumericalColumns   []string
	CategoricalColumns []string

	ModelFilePath  string
	ReportFilePath string
	// ExpectedScore is the minimum test F1 a model must reach.
	ExpectedScore float64
	Options       model.LogisticOptions
}

// Artifact is the training output consumed by evaluation.
type Artifact struct {
	ModelFilePath string       `json:"trained_model_file_path"`
	Metric        model.Report `json:"metric_artifact"`
}

// Trainer fits and persists the challenger.
type Trainer struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a trainer.
func New(config Config, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{config: config, logger: logger.With("component", "training"), now: time.Now}
}

// InitiateTraining fits on the train file, scores on the test file, and
// saves the model when it reaches the expected score.
func (t *Trainer) InitiateTraining(ctx context.Context, in *ingestion.Artifact) (*Artifact, error) {
	if in == nil {
		return nil, errs.Training("ingestion artifact is required", nil)
	}

	xTrain, yTrain, err := t.load(in.TrainedFilePath)
	if err != nil {
		return nil, errs.Training("load train set", err)
	}
	categorical := t.config.CategoricalColumns
	if len(t.config.NumericalColumns) == 0 && len(categorical) == 0 {
		categorical = inferCategorical(xTrain)
	}
	t.logger.InfoContext(ctx, "fitting model",
		"rows", xTrain.Len(),
		"features", xTrain.Columns,
		"categorical", categorical)

	transform, err := model.FitColumnTransformer(xTrain, categorical)
	if err != nil {
		return nil, errs.Training("fit column transformer", err)
	}
	encoded, err := transform.Transform(xTrain)
	if err != nil {
		return nil, errs.Training("encode train set", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Training("fit model", err)
	}
	predictor, err := model.FitLogisticRegression(encoded, yTrain, t.config.Options)
	if err != nil {
		return nil, errs.Training("fit logistic regression", err)
	}

	artifact := &model.Artifact{
		Transform: transform,
		Predictor: predictor,
		Metadata: model.Metadata{
			Name:      "logistic-regression",
			Target:    t.config.TargetColumn,
			Features:  append([]string(nil), xTrain.Columns...),
			TrainedAt: t.now().UTC(),
		},
	}

	xTest, yTest, err := t.load(in.TestFilePath)
	if err != nil {
		return nil, errs.Training("load test set", err)
	}
	pred, err := artifact.Predict(xTest)
	if err != nil {
		return nil, errs.Training("score test set", err)
	}
	report, err := model.Classify(yTest, pred)
	if err != nil {
		return nil, errs.Training("score test set", err)
	}
	artifact.Metadata.F1Score = report.F1
	t.logger.InfoContext(ctx, "model scored",
		"f1_score", report.F1,
		"precision", report.Precision,
		"recall", report.Recall,
		"accuracy", report.Accuracy)

	if report.F1 < t.config.ExpectedScore {
		return nil, errs.Training(fmt.Sprintf("model f1 %.4f is below expected score %.4f", report.F1, t.config.ExpectedScore), nil)
	}

	if err := model.SaveFile(t.config.ModelFilePath, artifact); err != nil {
		return nil, errs.Training("save model", err)
	}
	out := &Artifact{ModelFilePath: t.config.ModelFilePath, Metric: report}
	if t.config.ReportFilePath != "" {
		if err := dataset.WriteJSON(t.config.ReportFilePath, out); err != nil {
			return nil, errs.Training("write training report", err)
		}
	}
	t.logger.InfoContext(ctx, "model saved", "path", t.config.ModelFilePath)
	return out, nil
}

// load reads a split file and separates the configured features from the
// target labels.
func (t *Trainer) load(path string) (*dataset.Dataset, []int, error) {
	ds, err := dataset.ReadCSV(path)
	if err != nil {
		return nil, nil, err
	}
	x, rawY, err := ds.SplitXY(t.config.TargetColumn)
	if err != nil {
		return nil, nil, err
	}
	if features := t.features(); len(features) > 0 {
		if x, err = x.Select(features...); err != nil {
			return nil, nil, err
		}
	}
	y, err := model.ParseLabels(rawY)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (t *Trainer) features() []string {
	out := make([]string, 0, len(t.config.NumericalColumns)+len(t.config.CategoricalColumns))
	out = append(out, t.config.NumericalColumns...)
	return append(out, t.config.CategoricalColumns...)
}

// inferCategorical returns columns holding any non-numeric, non-missing cell.
func inferCategorical(x *dataset.Dataset) []string {
	var out []string
	for i, name := range x.Columns {
		for _, row := range x.Rows {
			if model.IsMissing(row[i]) {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64); err != nil {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
