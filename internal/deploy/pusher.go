// Package deploy promotes an accepted challenger by uploading it over the
// champion in the object store.
package deploy

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/evaluation"
)

// Saver uploads a local artifact. *registry.Locator implements it.
type Saver interface {
	Save(ctx context.Context, localPath, path string, remove bool) error
}

// Config holds pusher settings.
type Config struct {
	// RemoveLocal deletes the trained model file once the upload succeeds.
	RemoveLocal bool
}

// Artifact records what the pusher did.
type Artifact struct {
	Pushed      bool   `json:"pushed"`
	S3ModelPath string `json:"s3_model_path"`
	LocalPath   string `json:"trained_model_path"`
}

// Pusher uploads accepted models.
type Pusher struct {
	saver  Saver
	config Config
	logger *slog.Logger
}

// New creates a pusher.
func New(saver Saver, config Config, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{saver: saver, config: config, logger: logger.With("component", "pusher")}
}

// InitiatePush uploads the trained model when the evaluation accepted it and
// does nothing otherwise. A rejected challenger never touches the store.
func (p *Pusher) InitiatePush(ctx context.Context, in *evaluation.Artifact) (*Artifact, error) {
	if in == nil {
		return nil, errs.Evaluation("evaluation artifact is required", nil)
	}
	out := &Artifact{S3ModelPath: in.S3ModelPath, LocalPath: in.TrainedModelPath}
	if !in.IsModelAccepted {
		p.logger.InfoContext(ctx, "challenger rejected; champion unchanged",
			"delta", in.ChangedAccuracy)
		return out, nil
	}

	if err := p.saver.Save(ctx, in.TrainedModelPath, in.S3ModelPath, p.config.RemoveLocal); err != nil {
		return nil, err
	}
	out.Pushed = true
	p.logger.InfoContext(ctx, "challenger promoted",
		"key", in.S3ModelPath,
		"delta", in.ChangedAccuracy,
		"removed_local", p.config.RemoveLocal)
	return out, nil
}
