// Package ingestion exports raw records from the document store, snapshots
// them to the feature store, and persists a train/test partition.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/docstore"
	"github.com/haasonsaas/modelgate/internal/errs"
)

// Config holds the static inputs for one ingestion run.
type Config struct {
	Collection           string
	FeatureStoreFilePath string
	TrainingFilePath     string
	TestingFilePath      string
	TrainTestSplitRatio  float64
	DropColumns          []string
	// Seed fixes the partition when set.
	Seed *int64
}

// Artifact points at the persisted split. Downstream stages re-read the
// files rather than sharing the in-memory data.
type Artifact struct {
	TrainedFilePath string `json:"trained_file_path"`
	TestFilePath    string `json:"test_file_path"`
	TrainRows       int    `json:"train_rows"`
	TestRows        int    `json:"test_rows"`
}

// Pipeline runs ingestion against a document store.
type Pipeline struct {
	store  docstore.Store
	config Config
	logger *slog.Logger

	// counts from the last SplitTrainTest
	trainRows, testRows int
}

// New creates an ingestion pipeline.
func New(store docstore.Store, config Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, config: config, logger: logger.With("component", "ingestion")}
}

// ExportToFeatureStore reads the configured collection and writes the full
// unsplit snapshot to the feature store path.
func (p *Pipeline) ExportToFeatureStore(ctx context.Context) (*dataset.Dataset, error) {
	p.logger.InfoContext(ctx, "exporting collection", "collection", p.config.Collection)

	ds, err := p.store.ExportCollection(ctx, p.config.Collection)
	if err != nil {
		return nil, errs.Ingestion(fmt.Sprintf("export collection %q", p.config.Collection), err)
	}
	rows, cols := ds.Shape()
	if cols == 0 {
		return nil, errs.Ingestion(fmt.Sprintf("collection %q returned no columns", p.config.Collection), nil)
	}
	p.logger.InfoContext(ctx, "collection exported", "rows", rows, "columns", cols)

	if err := dataset.WriteCSV(p.config.FeatureStoreFilePath, ds); err != nil {
		return nil, errs.Ingestion("write feature store snapshot", err)
	}
	p.logger.InfoContext(ctx, "feature store snapshot saved", "path", p.config.FeatureStoreFilePath)
	return ds, nil
}

// SplitTrainTest partitions ds with the given test ratio and writes both
// halves. The test file is only written after the train file succeeds, and
// a failed test write removes the train file again.
func (p *Pipeline) SplitTrainTest(ctx context.Context, ds *dataset.Dataset, ratio float64) error {
	train, test, err := ds.Split(dataset.SplitOptions{TestRatio: ratio, Seed: p.config.Seed})
	if err != nil {
		return errs.Ingestion("split train/test", err)
	}
	if err := ctx.Err(); err != nil {
		return errs.Ingestion("split train/test", err)
	}

	if err := dataset.WriteCSV(p.config.TrainingFilePath, train); err != nil {
		return errs.Ingestion("write train set", err)
	}
	if err := dataset.WriteCSV(p.config.TestingFilePath, test); err != nil {
		if rmErr := os.Remove(p.config.TrainingFilePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.WarnContext(ctx, "failed to roll back train set", "path", p.config.TrainingFilePath, "error", rmErr)
		}
		return errs.Ingestion("write test set", err)
	}

	p.trainRows, p.testRows = train.Len(), test.Len()
	p.logger.InfoContext(ctx, "train/test split saved",
		"train_path", p.config.TrainingFilePath,
		"train_rows", p.trainRows,
		"test_path", p.config.TestingFilePath,
		"test_rows", p.testRows)
	return nil
}

// InitiateIngestion runs export, column drop, and split, returning the
// handles of the persisted files.
func (p *Pipeline) InitiateIngestion(ctx context.Context) (*Artifact, error) {
	ds, err := p.ExportToFeatureStore(ctx)
	if err != nil {
		return nil, err
	}

	ds, err = ds.DropColumns(p.config.DropColumns...)
	if err != nil {
		return nil, err
	}
	if len(p.config.DropColumns) > 0 {
		p.logger.InfoContext(ctx, "dropped columns", "columns", p.config.DropColumns)
	}

	if err := p.SplitTrainTest(ctx, ds, p.config.TrainTestSplitRatio); err != nil {
		return nil, err
	}
	return &Artifact{
		TrainedFilePath: p.config.TrainingFilePath,
		TestFilePath:    p.config.TestingFilePath,
		TrainRows:       p.trainRows,
		TestRows:        p.testRows,
	}, nil
}
