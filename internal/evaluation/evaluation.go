// Package evaluation compares the freshly trained challenger against the
// production champion and decides whether the challenger is promoted.
//
// An evaluation run moves through a fixed sequence of stages:
//
//	START → LOAD_TEST_SET → LOOKUP_CHAMPION → SCORE_CHAMPION → COMPUTE_DECISION → DONE
//
// SCORE_CHAMPION is skipped when no champion exists. A missing champion is an
// expected state, not an error: its score is taken as zero, so any challenger
// with a positive score is accepted.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/model"
)

// Stage names a step of an evaluation run.
type Stage string

const (
	StageStart           Stage = "START"
	StageLoadTestSet     Stage = "LOAD_TEST_SET"
	StageLookupChampion  Stage = "LOOKUP_CHAMPION"
	StageScoreChampion   Stage = "SCORE_CHAMPION"
	StageComputeDecision Stage = "COMPUTE_DECISION"
	StageDone            Stage = "DONE"
)

// Locator finds and loads the champion. Exists must report false only for a
// confirmed absence. *registry.Locator implements it.
type Locator interface {
	Exists(ctx context.Context, path string) bool
	Load(ctx context.Context, path string) (*model.Artifact, error)
}

// Config holds evaluation settings.
type Config struct {
	TargetColumn string
	// Bucket and ModelKeyPath locate the champion.
	Bucket       string
	ModelKeyPath string
	// ReportFilePath receives the JSON result when set.
	ReportFilePath string
}

// Input is what the earlier stages hand to evaluation.
type Input struct {
	TestFilePath     string
	TrainedModelPath string
	// ChallengerScore is the F1 recorded at training time. It is never
	// recomputed here.
	ChallengerScore float64
}

// Result is the outcome of one evaluation.
type Result struct {
	ChallengerScore float64 `json:"trained_model_f1_score"`
	// ChampionScore is nil when no champion exists.
	ChampionScore *float64 `json:"best_model_f1_score"`
	Accepted      bool     `json:"is_model_accepted"`
	Delta         float64  `json:"difference"`
}

// Artifact is the evaluation output consumed by the pusher.
type Artifact struct {
	IsModelAccepted  bool    `json:"is_model_accepted"`
	S3ModelPath      string  `json:"s3_model_path"`
	TrainedModelPath string  `json:"trained_model_path"`
	ChangedAccuracy  float64 `json:"changed_accuracy"`
	Result           Result  `json:"result"`
}

// Engine runs evaluations. It is not safe for concurrent use.
type Engine struct {
	locator Locator
	config  Config
	logger  *slog.Logger

	// OnStage, when set, is called on every stage transition.
	OnStage func(Stage)
}

// New creates an evaluation engine.
func New(locator Locator, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		locator: locator,
		config:  config,
		logger:  logger.With("component", "evaluation"),
	}
}

func (e *Engine) enter(ctx context.Context, stage Stage) {
	e.logger.DebugContext(ctx, "evaluation stage", "stage", string(stage))
	if e.OnStage != nil {
		e.OnStage(stage)
	}
}

// GetBestModel returns the champion, or ok=false when none exists. Load is
// skipped only when Exists reports a confirmed absence; a store that cannot
// answer surfaces as a Load failure.
func (e *Engine) GetBestModel(ctx context.Context) (champion *model.Artifact, ok bool, err error) {
	if !e.locator.Exists(ctx, e.config.ModelKeyPath) {
		return nil, false, nil
	}
	champion, err = e.locator.Load(ctx, e.config.ModelKeyPath)
	if err != nil {
		return nil, false, err
	}
	return champion, true, nil
}

// Evaluate scores the champion on the test set and compares it with the
// challenger's recorded score. A tie is rejected.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Result, error) {
	e.enter(ctx, StageStart)

	e.enter(ctx, StageLoadTestSet)
	x, y, err := e.loadTestSet(in.TestFilePath)
	if err != nil {
		return nil, errs.Evaluation(fmt.Sprintf("load test set %s", in.TestFilePath), err)
	}

	e.enter(ctx, StageLookupChampion)
	champion, ok, err := e.GetBestModel(ctx)
	if err != nil {
		return nil, errs.Evaluation("load champion", err)
	}

	result := &Result{ChallengerScore: in.ChallengerScore}
	if ok {
		e.enter(ctx, StageScoreChampion)
		pred, err := champion.Predict(x)
		if err != nil {
			return nil, errs.Evaluation("champion predict", err)
		}
		score, err := model.F1Score(y, pred)
		if err != nil {
			return nil, errs.Evaluation("score champion", err)
		}
		result.ChampionScore = &score
	} else {
		e.logger.InfoContext(ctx, "no champion found; challenger competes against zero",
			"bucket", e.config.Bucket,
			"key", e.config.ModelKeyPath)
	}

	e.enter(ctx, StageComputeDecision)
	result.Accepted, result.Delta = Decide(result.ChallengerScore, result.ChampionScore)

	e.enter(ctx, StageDone)
	e.logger.InfoContext(ctx, "evaluation complete",
		"challenger_f1", result.ChallengerScore,
		"champion_f1", championLogValue(result.ChampionScore),
		"accepted", result.Accepted,
		"delta", result.Delta)
	return result, nil
}

// Decide applies the promotion rule. An absent champion scores zero.
func Decide(challenger float64, champion *float64) (accepted bool, delta float64) {
	var threshold float64
	if champion != nil {
		threshold = *champion
	}
	return challenger > threshold, challenger - threshold
}

// InitiateEvaluation runs Evaluate and packages the decision with the paths
// the pusher needs.
func (e *Engine) InitiateEvaluation(ctx context.Context, in Input) (*Artifact, error) {
	result, err := e.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}
	artifact := &Artifact{
		IsModelAccepted:  result.Accepted,
		S3ModelPath:      e.config.ModelKeyPath,
		TrainedModelPath: in.TrainedModelPath,
		ChangedAccuracy:  result.Delta,
		Result:           *result,
	}
	if e.config.ReportFilePath != "" {
		if err := dataset.WriteJSON(e.config.ReportFilePath, artifact); err != nil {
			return nil, errs.Evaluation("write evaluation report", err)
		}
	}
	return artifact, nil
}

// loadTestSet reads the raw test file. The champion receives untransformed
// features since its artifact carries its own transform.
func (e *Engine) loadTestSet(path string) (*dataset.Dataset, []int, error) {
	ds, err := dataset.ReadCSV(path)
	if err != nil {
		return nil, nil, err
	}
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("test set is empty")
	}
	x, rawY, err := ds.SplitXY(e.config.TargetColumn)
	if err != nil {
		return nil, nil, err
	}
	y, err := model.ParseLabels(rawY)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func championLogValue(score *float64) any {
	if score == nil {
		return "absent"
	}
	return *score
}
