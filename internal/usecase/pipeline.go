package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// Step numbers as exposed on the command line.
const (
	StepAll         = 0
	StepExtract     = 1
	StepSummarize   = 2
	StepThreads     = 3
	StepConsolidate = 4
	StepReport      = 5
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.IssueSource
	Store     ports.RecordStore
	Generator ports.TextGenerator
	Threads   ports.ThreadFetcher
	Reporter  ports.ReportWriter
	Logger    *slog.Logger
}

// RunOptions selects what one pipeline invocation does.
type RunOptions struct {
	Project string
	// Step restricts the run to one step; StepAll runs 1 through 5.
	Step  int
	Tags  []string
	Limit int
}

// Pipeline implements the extract, enrich, consolidate and report workflow.
type Pipeline struct {
	source     ports.IssueSource
	store      ports.RecordStore
	threads    ports.ThreadFetcher
	reporter   ports.ReportWriter
	runner     *StageRunner
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		source:   deps.Source,
		store:    deps.Store,
		threads:  deps.Threads,
		reporter: deps.Reporter,
		logger:   logger.With("component", "pipeline"),
	}
	if deps.Generator != nil {
		p.runner = NewStageRunner(deps.Store, deps.Generator, p.logger)
		p.aggregator = NewAggregator(deps.Store, deps.Generator, p.logger)
	}
	return p
}

// Run executes the selected steps in order. Each step reads its
// predecessor's persisted output, so any step can be resumed on its own.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) error {
	if p.store == nil {
		return fmt.Errorf("record store is not configured")
	}
	if opts.Step < StepAll || opts.Step > StepReport {
		return fmt.Errorf("unknown step %d", opts.Step)
	}

	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "project", opts.Project)
	log.Info("pipeline started", "step", opts.Step)

	steps := []struct {
		number int
		name   string
		run    func(context.Context, RunOptions, *slog.Logger) error
	}{
		{StepExtract, "extract", p.extract},
		{StepSummarize, "summarize", p.summarize},
		{StepThreads, "analyze-thread", p.analyzeThreads},
		{StepConsolidate, "consolidate", p.consolidate},
		{StepReport, "report", p.report},
	}

	for _, step := range steps {
		if opts.Step != StepAll && opts.Step != step.number {
			continue
		}
		log.Info("step started", "step", step.number, "name", step.name)
		if err := step.run(ctx, opts, log); err != nil {
			return fmt.Errorf("step %d (%s): %w", step.number, step.name, err)
		}
	}

	log.Info("pipeline finished")
	return nil
}

// extract fetches issues and appends those not already recorded, one at a time.
func (p *Pipeline) extract(ctx context.Context, opts RunOptions, log *slog.Logger) error {
	if p.source == nil {
		return fmt.Errorf("issue source is not configured")
	}
	if opts.Project == "" {
		return fmt.Errorf("a project identifier is required to extract issues")
	}

	existing, err := p.store.LoadLatest(ctx, domain.StageRaw)
	if err != nil && !errors.Is(err, ports.ErrMissingInput) {
		return fmt.Errorf("load raw records: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, issue := range existing {
		seen[issue.ID] = struct{}{}
	}

	issues, fetchErr := p.source.FetchIssues(ctx, opts.Project, opts.Tags, opts.Limit)
	if fetchErr != nil && len(issues) == 0 {
		return fmt.Errorf("fetch issues: %w", fetchErr)
	}

	added := 0
	for _, issue := range issues {
		if _, ok := seen[issue.ID]; ok {
			continue
		}
		issue.Normalize()
		if err := p.store.Append(ctx, domain.StageRaw, issue); err != nil {
			return fmt.Errorf("persist issue %s: %w", issue.ID, err)
		}
		seen[issue.ID] = struct{}{}
		added++
	}
	if added == 0 && len(existing) == 0 {
		log.Warn("no issues extracted")
	}
	log.Info("extraction saved", "fetched", len(issues), "new", added)
	return fetchErr
}

func (p *Pipeline) summarize(ctx context.Context, opts RunOptions, _ *slog.Logger) error {
	if p.runner == nil {
		return fmt.Errorf("text generator is not configured")
	}
	_, err := p.runner.Run(ctx, SummarizeStage(), opts.Limit)
	return err
}

func (p *Pipeline) analyzeThreads(ctx context.Context, opts RunOptions, _ *slog.Logger) error {
	if p.runner == nil {
		return fmt.Errorf("text generator is not configured")
	}
	_, err := p.runner.Run(ctx, AnalyzeThreadStage(p.threads), opts.Limit)
	return err
}

func (p *Pipeline) consolidate(ctx context.Context, _ RunOptions, log *slog.Logger) error {
	if p.aggregator == nil {
		return fmt.Errorf("text generator is not configured")
	}
	judgments, err := p.aggregator.Consolidate(ctx)
	if err != nil {
		return err
	}
	log.Info("consolidation saved", "criteria", len(judgments))
	return nil
}

func (p *Pipeline) report(ctx context.Context, _ RunOptions, log *slog.Logger) error {
	if p.reporter == nil {
		return fmt.Errorf("report writer is not configured")
	}
	judgments, err := p.store.LoadJudgments(ctx)
	if err != nil {
		return fmt.Errorf("load judgments: %w", err)
	}
	paths, err := p.reporter.WriteReport(ctx, judgments)
	if err != nil {
		return err
	}
	log.Info("report written", "files", paths)
	return nil
}
