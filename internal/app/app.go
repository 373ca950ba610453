package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ACRScanner/internal/config"
	"ACRScanner/internal/infrastructure/llm"
	"ACRScanner/internal/infrastructure/parser"
	"ACRScanner/internal/infrastructure/scheduler"
	"ACRScanner/internal/infrastructure/storage"
	"ACRScanner/internal/infrastructure/thread"
	"ACRScanner/internal/logging"
	"ACRScanner/internal/ports"
	"ACRScanner/internal/report"
	"ACRScanner/internal/scanner"
	"ACRScanner/internal/usecase"
)

// Options carry the command-line selections that override configuration.
type Options struct {
	Repo      string
	Scanner   string
	Step      int
	Backend   string
	Model     string
	Tags      []string
	Limit     int
	OutputDir string
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	opts     Options
	runDir   string
	store    storage.Store
	pipeline *usecase.Pipeline
	logger   *slog.Logger
}

// New builds the adapters for one run directory. Steps after extraction
// require the run directory to exist already.
func New(cfg config.Config, opts Options, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if opts.Backend != "" {
		cfg.AI.Backend = config.NormalizeBackend(opts.Backend)
	}
	if opts.Model != "" {
		cfg.AI.Model = opts.Model
	}
	opts.Repo = parser.NormalizeProject(opts.Repo)

	runDir := opts.OutputDir
	if runDir == "" {
		runDir = RunDir(cfg.Storage.ResultsDir, opts.Repo, llm.ModelName(cfg.AI), time.Now())
	}
	if err := prepareRunDir(runDir, opts.Step); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.Driver, runDir)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	var generator ports.TextGenerator
	if needsGenerator(opts.Step) {
		generator, err = llm.New(cfg.AI)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("configure ai backend: %w", err)
		}
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewDrupalScanner(nil, cfg.Trackers.Drupal, nil, baseLogger))
	registry.Register(parser.NewGitHubScanner(nil, cfg.Trackers.GitHub, nil, baseLogger))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:    parser.NewStrategySource(registry, opts.Scanner, baseLogger),
		Store:     store,
		Generator: generator,
		Threads:   thread.NewFetcher(cfg.Thread, cfg.Trackers, baseLogger),
		Reporter:  report.NewFileWriter(runDir, cfg.Report, baseLogger),
		Logger:    baseLogger,
	})

	baseLogger.Info("application configured",
		"repo", opts.Repo,
		"backend", cfg.AI.Backend,
		"model", llm.ModelName(cfg.AI),
		"storage", cfg.Storage.Driver,
		"run_dir", runDir,
	)
	return &Application{
		cfg:      cfg,
		opts:     opts,
		runDir:   runDir,
		store:    store,
		pipeline: pipeline,
		logger:   baseLogger.With("component", "app"),
	}, nil
}

// RunDir names the per-run results directory:
// <results>/<repo with "/" as "-">-<model without ":">-<MM-DD-YYYY>.
func RunDir(resultsDir, repo, model string, now time.Time) string {
	name := fmt.Sprintf("%s-%s-%s",
		strings.ReplaceAll(repo, "/", "-"),
		strings.ReplaceAll(model, ":", ""),
		now.Format("01-02-2006"),
	)
	return filepath.Join(resultsDir, name)
}

// RunDirectory reports where this application reads and writes stage outputs.
func (a *Application) RunDirectory() string {
	return a.runDir
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) error {
	return a.pipeline.Run(ctx, a.runOptions())
}

// Schedule repeats the full pipeline on the configured interval until ctx ends.
func (a *Application) Schedule(ctx context.Context) error {
	opts := a.runOptions()
	opts.Step = usecase.StepAll

	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(a.cfg.Scheduler), a.pipeline, opts, a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "interval", a.cfg.Scheduler.Interval.String(), "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// Close releases the record store.
func (a *Application) Close() error {
	return a.store.Close()
}

func (a *Application) runOptions() usecase.RunOptions {
	return usecase.RunOptions{
		Project: a.opts.Repo,
		Step:    a.opts.Step,
		Tags:    a.opts.Tags,
		Limit:   a.opts.Limit,
	}
}

// prepareRunDir creates the directory for runs that start with extraction;
// any later step must find its predecessor's directory.
func prepareRunDir(dir string, step int) error {
	if step == usecase.StepAll || step == usecase.StepExtract {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create run directory: %w", err)
		}
		return nil
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("run directory %s not found, run step 1 first: %w", dir, ports.ErrMissingInput)
	}
	if err != nil {
		return fmt.Errorf("inspect run directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("run directory %s is not a directory", dir)
	}
	return nil
}

func needsGenerator(step int) bool {
	switch step {
	case usecase.StepAll, usecase.StepSummarize, usecase.StepThreads, usecase.StepConsolidate:
		return true
	}
	return false
}
