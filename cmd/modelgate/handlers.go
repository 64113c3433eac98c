package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/modelgate/internal/config"
	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/docstore"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/evaluation"
	"github.com/haasonsaas/modelgate/internal/ingestion"
	"github.com/haasonsaas/modelgate/internal/objectstore"
	"github.com/haasonsaas/modelgate/internal/observability"
	"github.com/haasonsaas/modelgate/internal/pipeline"
	"github.com/haasonsaas/modelgate/internal/registry"
	"github.com/haasonsaas/modelgate/internal/schedule"
	"github.com/haasonsaas/modelgate/internal/training"
)

// needs selects which store connections a command opens.
type needs int

const (
	needDocuments needs = 1 << iota
	needObjects
)

// app holds the process-wide collaborators for one command invocation.
// Store connections are created once here and passed by reference.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	docs       docstore.Store
	objects    objectstore.Gateway

	shutdownTracer func(context.Context) error
}

func openApp(ctx context.Context, configPath string, n needs) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		metrics:    observability.NewMetrics(reg),
	}

	tracer, shutdown, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    cfg.Pipeline.Name,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	a.tracer, a.shutdownTracer = tracer, shutdown

	if n&needDocuments != 0 {
		if a.docs, err = docstore.New(ctx, cfg.DocumentStore); err != nil {
			a.Close()
			return nil, errs.Ingestion("connect to document store", err)
		}
	}
	if n&needObjects != 0 {
		if a.objects, err = objectstore.New(ctx, cfg.ObjectStore); err != nil {
			a.Close()
			return nil, errs.RemoteAccess("connect to object store", err)
		}
	}
	return a, nil
}

// pipeline builds a pipeline over the app's connections using cfg.
func (a *app) pipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Options{
		Config:        cfg,
		DocumentStore: a.docs,
		ObjectStore:   a.objects,
		Logger:        a.logger,
		Metrics:       a.metrics,
		Tracer:        a.tracer,
	})
}

func (a *app) locator() *registry.Locator {
	return registry.NewLocator(a.objects, registry.Handle{
		Bucket: a.cfg.Evaluation.BucketName,
		Key:    a.cfg.Evaluation.ModelKeyPath,
	}, a.logger)
}

// Close releases store connections and flushes pending spans.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.docs != nil {
		if err := a.docs.Close(ctx); err != nil {
			a.logger.Warn("close document store", "error", err)
		}
	}
	if a.objects != nil {
		if err := a.objects.Close(); err != nil {
			a.logger.Warn("close object store", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Warn("flush traces", "error", err)
		}
	}
}

// serveMetrics exposes the app registry until the returned stop func is
// called. An empty addr falls back to the configured one; if both are empty
// nothing is served.
func (a *app) serveMetrics(addr string) (stop func(), err error) {
	if addr == "" {
		addr = a.cfg.Observability.MetricsAddr
	}
	if addr == "" {
		return func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown error", "error", err)
		}
	}, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// =============================================================================
// Pipeline Handlers
// =============================================================================

func runPipeline(ctx context.Context, out io.Writer, configPath, metricsAddr string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	a, err := openApp(ctx, configPath, needDocuments|needObjects)
	if err != nil {
		return err
	}
	defer a.Close()

	stop, err := a.serveMetrics(metricsAddr)
	if err != nil {
		return err
	}
	defer stop()

	p, err := a.pipeline(a.cfg)
	if err != nil {
		return err
	}
	report, err := p.Run(ctx)
	if report != nil {
		if perr := printJSON(out, report); perr != nil {
			return perr
		}
	}
	return err
}

func runIngest(ctx context.Context, out io.Writer, configPath string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	a, err := openApp(ctx, configPath, needDocuments)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(a.cfg)
	if err != nil {
		return err
	}
	paths := a.cfg.Paths(time.Now())
	artifact, err := p.Ingest(ctx, paths)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{
		"run_dir":        paths.Dir,
		"data_ingestion": artifact,
	})
}

func runTrain(ctx context.Context, out io.Writer, configPath, runDir string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	a, err := openApp(ctx, configPath, 0)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(a.cfg)
	if err != nil {
		return err
	}
	paths := a.cfg.PathsIn(runDir)
	artifact, err := p.Train(ctx, paths, splitFrom(paths))
	if err != nil {
		return err
	}
	return printJSON(out, artifact)
}

func runEvaluate(ctx context.Context, out io.Writer, configPath, runDir string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	a, err := openApp(ctx, configPath, needObjects)
	if err != nil {
		return err
	}
	defer a.Close()

	paths := a.cfg.PathsIn(runDir)
	trained, err := dataset.ReadJSON[training.Artifact](paths.TrainingReportPath)
	if err != nil {
		return errs.Evaluation("read training report", err)
	}
	p, err := a.pipeline(a.cfg)
	if err != nil {
		return err
	}
	artifact, err := p.Evaluate(ctx, paths, splitFrom(paths), trained)
	if err != nil {
		return err
	}
	return printJSON(out, artifact)
}

func runPush(ctx context.Context, out io.Writer, configPath, runDir string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	a, err := openApp(ctx, configPath, needObjects)
	if err != nil {
		return err
	}
	defer a.Close()

	paths := a.cfg.PathsIn(runDir)
	evaluated, err := dataset.ReadJSON[evaluation.Artifact](paths.EvaluationReportPath)
	if err != nil {
		return errs.Evaluation("read evaluation report", err)
	}
	p, err := a.pipeline(a.cfg)
	if err != nil {
		return err
	}
	artifact, err := p.Push(ctx, evaluated)
	if err != nil {
		return err
	}
	return printJSON(out, artifact)
}

// splitFrom points at the train/test files of an existing run directory.
func splitFrom(paths config.RunPaths) *ingestion.Artifact {
	return &ingestion.Artifact{
		TrainedFilePath: paths.TrainingFilePath,
		TestFilePath:    paths.TestingFilePath,
	}
}

// =============================================================================
// Schedule Handler
// =============================================================================

type scheduleOptions struct {
	cron        string
	timezone    string
	metricsAddr string
	watch       bool
	debounce    time.Duration
}

func runSchedule(ctx context.Context, configPath string, opts scheduleOptions) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	a, err := openApp(ctx, configPath, needDocuments|needObjects)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := resolveSchedule(a.cfg, opts)
	if err != nil {
		return err
	}
	initial, err := a.pipeline(a.cfg)
	if err != nil {
		return err
	}
	var current atomic.Pointer[pipeline.Pipeline]
	current.Store(initial)

	stop, err := a.serveMetrics(opts.metricsAddr)
	if err != nil {
		return err
	}
	defer stop()

	scheduler := schedule.New(sched, func(ctx context.Context) error {
		_, err := current.Load().Run(ctx)
		return err
	}, schedule.WithLogger(a.logger))

	if opts.watch {
		watcher := config.NewWatcher(configPath, opts.debounce, func(next *config.Config) {
			if !reflect.DeepEqual(next.DocumentStore, a.cfg.DocumentStore) || !reflect.DeepEqual(next.ObjectStore, a.cfg.ObjectStore) {
				a.logger.Warn("store settings changed; restart to apply them")
			}
			p, err := a.pipeline(next)
			if err != nil {
				a.logger.Warn("config reload ignored", "error", err)
				return
			}
			current.Store(p)
			if s, err := resolveSchedule(next, opts); err != nil {
				a.logger.Warn("schedule unchanged", "error", err)
			} else {
				scheduler.Reschedule(s)
			}
		}, a.logger)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Close()
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutdown signal received, waiting for the current run")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return scheduler.Stop(stopCtx)
}

// resolveSchedule prefers command-line flags over the config file.
func resolveSchedule(cfg *config.Config, opts scheduleOptions) (*schedule.Schedule, error) {
	expr, tz := cfg.Schedule.Cron, cfg.Schedule.Timezone
	if opts.cron != "" {
		expr = opts.cron
	}
	if opts.timezone != "" {
		tz = opts.timezone
	}
	s, err := schedule.Parse(expr, tz)
	if err != nil {
		return nil, errs.Config("invalid schedule", err)
	}
	return s, nil
}

// =============================================================================
// Model Handlers
// =============================================================================

func runModelExists(ctx context.Context, out io.Writer, configPath string) error {
	a, err := openApp(ctx, configPath, needObjects)
	if err != nil {
		return err
	}
	defer a.Close()

	loc := a.locator()
	handle := loc.Handle()
	present, err := loc.Lookup(ctx, handle.Key)
	if err != nil {
		return err
	}
	if present {
		_, err = fmt.Fprintf(out, "present: %s\n", handle)
	} else {
		_, err = fmt.Fprintf(out, "absent: %s\n", handle)
	}
	return err
}

func runModelPredict(ctx context.Context, out io.Writer, configPath, inputPath, outputPath string) error {
	a, err := openApp(ctx, configPath, needObjects)
	if err != nil {
		return err
	}
	defer a.Close()

	input, err := dataset.ReadCSV(inputPath)
	if err != nil {
		return err
	}
	labels, err := a.locator().Predict(ctx, input)
	if err != nil {
		return err
	}
	scored, err := withPredictions(input, labels)
	if err != nil {
		return err
	}
	if outputPath != "" {
		return dataset.WriteCSV(outputPath, scored)
	}
	return dataset.EncodeCSV(out, scored)
}

// withPredictions appends a prediction column to ds.
func withPredictions(ds *dataset.Dataset, labels []int) (*dataset.Dataset, error) {
	if len(labels) != ds.Len() {
		return nil, fmt.Errorf("got %d predictions for %d rows", len(labels), ds.Len())
	}
	columns := append(append([]string(nil), ds.Columns...), "prediction")
	rows := make([][]string, ds.Len())
	for i, row := range ds.Rows {
		rows[i] = append(append(make([]string, 0, len(row)+1), row...), fmt.Sprint(labels[i]))
	}
	return dataset.New(columns, rows)
}

// =============================================================================
// Config Handlers
// =============================================================================

func runConfigValidate(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "config ok: %s (collection=%s target=%s model=%s/%s)\n",
		configPath,
		cfg.Ingestion.Collection,
		cfg.Schema.TargetColumn,
		cfg.Evaluation.BucketName,
		cfg.Evaluation.ModelKeyPath)
	return err
}

func runConfigSchema(out io.Writer) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
