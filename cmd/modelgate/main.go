// Package main provides the CLI entry point for modelgate, a champion/challenger
// model promotion pipeline.
//
// modelgate exports a collection from a document store, splits it into train
// and test sets, fits a challenger model, scores the production champion on
// the same test set, and uploads the challenger to the object store only when
// it scores strictly higher.
//
// # Basic Usage
//
// Run the whole pipeline once:
//
//	modelgate run --config modelgate.yaml
//
// Run on a schedule, reloading the config when it changes:
//
//	modelgate schedule --config modelgate.yaml --watch
//
// Run a single stage against an existing run directory:
//
//	modelgate ingest
//	modelgate train --run-dir artifact/05_01_2024_08_00_00
//	modelgate evaluate --run-dir artifact/05_01_2024_08_00_00
//	modelgate push --run-dir artifact/05_01_2024_08_00_00
//
// # Environment Variables
//
// Configuration files may reference environment variables as ${NAME} or
// ${NAME:-default}. Commonly used:
//
//   - MODELGATE_CONFIG: Path to configuration file (default: modelgate.yaml)
//   - MONGODB_URL: Document store connection string
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: S3 credentials
//   - GOOGLE_APPLICATION_CREDENTIALS: GCS credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigName = "modelgate.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modelgate",
		Short: "modelgate - champion/challenger model promotion pipeline",
		Long: `modelgate ingests training data, trains a challenger model, and promotes it
over the production champion only when it scores strictly higher on the
held-out test set.

Stages: ingestion → training → evaluation → pusher`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildIngestCmd(),
		buildTrainCmd(),
		buildEvaluateCmd(),
		buildPushCmd(),
		buildScheduleCmd(),
		buildModelCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("MODELGATE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigName
}
