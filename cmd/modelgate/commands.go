package main

import (
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// Pipeline Commands
// =============================================================================

// buildRunCmd creates the "run" command that executes every stage once.
func buildRunCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run ingestion, training, evaluation, and push once",
		Long: `Run the full pipeline once under a fresh timestamped artifact directory.

The run stops at the first failing stage. A run.json report is written to
the artifact directory whether the run succeeds or fails.`,
		Example: `  # Run with the default config
  modelgate run

  # Expose Prometheus metrics while the run is in progress
  modelgate run --config prod.yaml --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), metricsAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
	return cmd
}

func buildIngestCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Export the collection and write a train/test split",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildTrainCmd() *cobra.Command {
	var configPath, runDir string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a challenger on the split in a run directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), runDir)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "Artifact directory written by ingest")
	_ = cmd.MarkFlagRequired("run-dir")
	return cmd
}

func buildEvaluateCmd() *cobra.Command {
	var configPath, runDir string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compare the trained challenger with the production champion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), runDir)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "Artifact directory written by train")
	_ = cmd.MarkFlagRequired("run-dir")
	return cmd
}

func buildPushCmd() *cobra.Command {
	var configPath, runDir string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the challenger if its evaluation accepted it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), runDir)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "Artifact directory written by evaluate")
	_ = cmd.MarkFlagRequired("run-dir")
	return cmd
}

// =============================================================================
// Schedule Command
// =============================================================================

// buildScheduleCmd creates the "schedule" command that runs the pipeline on a
// cron expression until interrupted.
func buildScheduleCmd() *cobra.Command {
	var (
		configPath  string
		cronExpr    string
		timezone    string
		metricsAddr string
		watch       bool
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule",
		Long: `Run the pipeline whenever the cron expression comes due. Runs never overlap.

With --watch the config file is reloaded on change: the new schedule takes
effect immediately and stage settings apply from the next run. Store
connection settings require a restart.`,
		Example: `  # Every night at 03:00 UTC
  modelgate schedule --cron "0 3 * * *" --timezone UTC

  # Use schedule.cron from the config and follow edits
  modelgate schedule --config prod.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), resolveConfigPath(configPath), scheduleOptions{
				cron:        cronExpr,
				timezone:    timezone,
				metricsAddr: metricsAddr,
				watch:       watch,
				debounce:    debounce,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (overrides schedule.cron)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for the cron expression (overrides schedule.timezone)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the config file when it changes")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Delay before reloading after a config change")
	return cmd
}

// =============================================================================
// Model Commands
// =============================================================================

// buildModelCmd creates the "model" command group for the production model.
func buildModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and use the production model",
	}
	cmd.AddCommand(buildModelExistsCmd(), buildModelPredictCmd())
	return cmd
}

func buildModelExistsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "exists",
		Short: "Report whether a production model is present",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelExists(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildModelPredictCmd() *cobra.Command {
	var configPath, inputPath, outputPath string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a CSV file with the production model",
		Example: `  # Append a prediction column and print to stdout
  modelgate model predict --input patients.csv

  # Write to a file instead
  modelgate model predict --input patients.csv --output scored.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelPredict(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), inputPath, outputPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "CSV file with a header row")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write scored CSV here instead of stdout")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate configuration and print its schema",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd.OutOrStdout())
		},
	}
}
