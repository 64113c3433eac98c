// Package pipeline wires the stages into one run: ingestion, training,
// evaluation, and push. Every run gets its own artifact directory, run ID,
// trace, and JSON report.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/modelgate/internal/config"
	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/deploy"
	"github.com/haasonsaas/modelgate/internal/docstore"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/evaluation"
	"github.com/haasonsaas/modelgate/internal/ingestion"
	"github.com/haasonsaas/modelgate/internal/model"
	"github.com/haasonsaas/modelgate/internal/objectstore"
	"github.com/haasonsaas/modelgate/internal/observability"
	"github.com/haasonsaas/modelgate/internal/registry"
	"github.com/haasonsaas/modelgate/internal/training"
)

// Stage names used for logs, spans, and metric labels.
const (
	StageIngestion  = "ingestion"
	StageTraining   = "training"
	StageEvaluation = "evaluation"
	StagePusher     = "pusher"
)

// ErrRunInProgress is returned when Run is called while another run of the
// same pipeline has not finished.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Options configures a Pipeline. Stores may be left nil when only the stages
// that do not use them are called; Run needs both.
type Options struct {
	Config        *config.Config
	DocumentStore docstore.Store
	ObjectStore   objectstore.Gateway

	// Logger for pipeline events. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics and Tracer are optional.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Now overrides the clock used for run directories.
	Now func() time.Time
}

// Pipeline runs stages against shared store connections. Runs are
// serialized; a second concurrent Run fails with ErrRunInProgress.
type Pipeline struct {
	config  *config.Config
	docs    docstore.Store
	objects objectstore.Gateway
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time

	running sync.Mutex
}

// Report is written to run.json at the end of every run.
type Report struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	Dir        string    `json:"artifact_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	TraceID    string    `json:"trace_id,omitempty"`

	// FailedStage and the error fields are set when Status is "error".
	FailedStage string `json:"failed_stage,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`

	Ingestion  *ingestion.Artifact  `json:"data_ingestion,omitempty"`
	Training   *training.Artifact   `json:"model_trainer,omitempty"`
	Evaluation *evaluation.Artifact `json:"model_evaluation,omitempty"`
	Push       *deploy.Artifact     `json:"model_pusher,omitempty"`
}

// Decision is accepted, rejected, or empty when evaluation never finished.
func (r *Report) Decision() string {
	if r == nil || r.Evaluation == nil {
		return ""
	}
	if r.Evaluation.IsModelAccepted {
		return "accepted"
	}
	return "rejected"
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, errs.Config("pipeline config is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		config:  opts.Config,
		docs:    opts.DocumentStore,
		objects: opts.ObjectStore,
		logger:  logger.With("component", "pipeline"),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		now:     now,
	}, nil
}

// Run executes every stage in order under a fresh run directory. It stops at
// the first failing stage; the returned report is non-nil either way and has
// been written to the run directory.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	started := p.now()
	paths := p.config.Paths(started)
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		"run_id", runID,
		"pipeline", p.config.Pipeline.Name)
	defer span.End()

	report := &Report{
		RunID:     runID,
		Pipeline:  p.config.Pipeline.Name,
		Dir:       paths.Dir,
		StartedAt: started.UTC(),
		TraceID:   observability.TraceID(ctx),
	}
	p.logger.InfoContext(ctx, "pipeline run started", "dir", paths.Dir)

	err := p.runStages(ctx, paths, report)

	report.FinishedAt = p.now().UTC()
	report.Status = "success"
	if err != nil {
		report.Status = "error"
		report.ErrorCode = string(errs.CodeOf(err))
		report.Error = err.Error()
		observability.RecordError(span, err)
	}
	observability.SetAttributes(span, "status", report.Status, "decision", report.Decision())
	p.metrics.RecordRun(report.Status, report.Decision())

	if werr := dataset.WriteJSON(paths.RunReportPath, report); werr != nil {
		p.logger.WarnContext(ctx, "failed to write run report", "path", paths.RunReportPath, "error", werr)
	}

	if err != nil {
		p.logger.ErrorContext(ctx, "pipeline run failed",
			"stage", report.FailedStage,
			"code", report.ErrorCode,
			"error", err)
		return report, err
	}
	p.logger.InfoContext(ctx, "pipeline run finished",
		"decision", report.Decision(),
		"elapsed", report.FinishedAt.Sub(report.StartedAt).String())
	return report, nil
}

func (p *Pipeline) runStages(ctx context.Context, paths config.RunPaths, report *Report) error {
	var err error
	if report.Ingestion, err = p.Ingest(ctx, paths); err != nil {
		report.FailedStage = StageIngestion
		return err
	}
	if report.Training, err = p.Train(ctx, paths, report.Ingestion); err != nil {
		report.FailedStage = StageTraining
		return err
	}
	if report.Evaluation, err = p.Evaluate(ctx, paths, report.Ingestion, report.Training); err != nil {
		report.FailedStage = StageEvaluation
		return err
	}
	if report.Push, err = p.Push(ctx, report.Evaluation); err != nil {
		report.FailedStage = StagePusher
		return err
	}
	return nil
}

// Ingest exports the collection and writes the train/test split.
func (p *Pipeline) Ingest(ctx context.Context, paths config.RunPaths) (*ingestion.Artifact, error) {
	var out *ingestion.Artifact
	err := p.stage(ctx, StageIngestion, func(ctx context.Context, span trace.Span) error {
		if p.docs == nil {
			return errs.Config("document store is not configured", nil)
		}
		ing := ingestion.New(p.docs, ingestion.Config{
			Collection:           p.config.Ingestion.Collection,
			FeatureStoreFilePath: paths.FeatureStoreFilePath,
			TrainingFilePath:     paths.TrainingFilePath,
			TestingFilePath:      paths.TestingFilePath,
			TrainTestSplitRatio:  p.config.Ingestion.TrainTestSplitRatio,
			DropColumns:          p.config.Schema.DropColumns,
			Seed:                 p.config.Ingestion.Seed,
		}, p.logger)
		var err error
		if out, err = ing.InitiateIngestion(ctx); err != nil {
			return err
		}
		p.metrics.RecordRows("train", out.TrainRows)
		p.metrics.RecordRows("test", out.TestRows)
		observability.SetAttributes(span, "train_rows", out.TrainRows, "test_rows", out.TestRows)
		return nil
	})
	return out, err
}

// Train fits the challenger on the ingested split.
func (p *Pipeline) Train(ctx context.Context, paths config.RunPaths, in *ingestion.Artifact) (*training.Artifact, error) {
	var out *training.Artifact
	err := p.stage(ctx, StageTraining, func(ctx context.Context, span trace.Span) error {
		opts := model.DefaultLogisticOptions()
		tc := p.config.Training
		if tc.Epochs > 0 {
			opts.Epochs = tc.Epochs
		}
		if tc.LearningRate > 0 {
			opts.LearningRate = tc.LearningRate
		}
		if tc.L2 > 0 {
			opts.L2 = tc.L2
		}
		if tc.ClassWeighted != nil {
			opts.ClassWeighted = *tc.ClassWeighted
		}
		trainer := training.New(training.Config{
			TargetColumn:       p.config.Schema.TargetColumn,
			NumericalColumns:   p.config.Schema.NumericalColumns,
			CategoricalColumns: p.config.Schema.CategoricalColumns,
			ModelFilePath:      paths.ModelFilePath,
			ReportFilePath:     paths.TrainingReportPath,
			ExpectedScore:      tc.ExpectedScore,
			Options:            opts,
		}, p.logger)
		var err error
		if out, err = trainer.InitiateTraining(ctx, in); err != nil {
			return err
		}
		observability.SetAttributes(span, "f1_score", out.Metric.F1)
		return nil
	})
	return out, err
}

// Evaluate compares the challenger with the current champion. The registry
// locator is created here so its model cache lives for this evaluation only.
func (p *Pipeline) Evaluate(ctx context.Context, paths config.RunPaths, in *ingestion.Artifact, trained *training.Artifact) (*evaluation.Artifact, error) {
	var out *evaluation.Artifact
	err := p.stage(ctx, StageEvaluation, func(ctx context.Context, span trace.Span) error {
		if in == nil || trained == nil {
			return errs.Evaluation("ingestion and training artifacts are required", nil)
		}
		if p.objects == nil {
			return errs.Config("object store is not configured", nil)
		}
		engine := evaluation.New(p.locator(), evaluation.Config{
			TargetColumn:   p.config.Schema.TargetColumn,
			Bucket:         p.config.Evaluation.BucketName,
			ModelKeyPath:   p.config.Evaluation.ModelKeyPath,
			ReportFilePath: paths.EvaluationReportPath,
		}, p.logger)
		var err error
		out, err = engine.InitiateEvaluation(ctx, evaluation.Input{
			TestFilePath:     in.TestFilePath,
			TrainedModelPath: trained.ModelFilePath,
			ChallengerScore:  trained.Metric.F1,
		})
		if err != nil {
			return err
		}
		var champion float64
		if out.Result.ChampionScore != nil {
			champion = *out.Result.ChampionScore
		}
		p.metrics.RecordScores(champion, out.Result.ChallengerScore)
		p.metrics.RecordPromotion(out.IsModelAccepted, out.ChangedAccuracy)
		observability.SetAttributes(span,
			"accepted", out.IsModelAccepted,
			"delta", out.ChangedAccuracy,
			"champion_present", out.Result.ChampionScore != nil)
		return nil
	})
	return out, err
}

// Push uploads an accepted challenger over the champion.
func (p *Pipeline) Push(ctx context.Context, eval *evaluation.Artifact) (*deploy.Artifact, error) {
	var out *deploy.Artifact
	err := p.stage(ctx, StagePusher, func(ctx context.Context, span trace.Span) error {
		if p.objects == nil {
			return errs.Config("object store is not configured", nil)
		}
		pusher := deploy.New(p.locator(), deploy.Config{RemoveLocal: p.config.Pusher.RemoveLocal}, p.logger)
		var err error
		if out, err = pusher.InitiatePush(ctx, eval); err != nil {
			return err
		}
		observability.SetAttributes(span, "pushed", out.Pushed)
		return nil
	})
	return out, err
}

func (p *Pipeline) locator() *registry.Locator {
	return registry.NewLocator(p.objects, registry.Handle{
		Bucket: p.config.Evaluation.BucketName,
		Key:    p.config.Evaluation.ModelKeyPath,
	}, p.logger)
}

// stage runs fn in its own span and records its duration and outcome.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context, trace.Span) error) error {
	ctx = observability.WithStage(ctx, name)
	start := time.Now()
	p.logger.InfoContext(ctx, "stage started")

	err := observability.WithSpan(ctx, p.tracer, "pipeline."+name, fn, "stage", name)
	elapsed := time.Since(start)
	if err != nil {
		p.metrics.RecordStage(name, "error", elapsed)
		p.metrics.RecordError(name, string(errs.CodeOf(err)))
		p.logger.ErrorContext(ctx, "stage failed", "elapsed", elapsed.String(), "error", err)
		return err
	}
	p.metrics.RecordStage(name, "success", elapsed)
	p.logger.InfoContext(ctx, "stage finished", "elapsed", elapsed.String())
	return nil
}
