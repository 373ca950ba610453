package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
	"ACRScanner/internal/sections"
)

// Stage describes one per-record enrichment pass over the record store.
type Stage struct {
	Name   string
	Input  domain.Stage
	Output domain.Stage
	Prompt *template.Template
	Layout sections.Layout
	// Thread, when set, loads discussion context for the prompt.
	Thread ports.ThreadFetcher
	// Apply writes parsed sections into the issue.
	Apply func(issue *domain.Issue, parsed sections.Result)
	// Fail marks the stage's fields with the error sentinel.
	Fail func(issue *domain.Issue)
}

// StageReport counts what one Run did.
type StageReport struct {
	Considered int
	Skipped    int
	Enriched   int
	Failed     int
}

// StageRunner executes Stages record by record with incremental persistence.
type StageRunner struct {
	store     ports.RecordStore
	generator ports.TextGenerator
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewStageRunner wires the store and the text generator.
func NewStageRunner(store ports.RecordStore, generator ports.TextGenerator, logger *slog.Logger) *StageRunner {
	return &StageRunner{
		store:     store,
		generator: generator,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// Run enriches every input record not yet present in the stage output.
// A quota error stops the run and is returned; other per-record failures
// persist the record with error sentinels and the run continues.
func (r *StageRunner) Run(ctx context.Context, stage Stage, limit int) (StageReport, error) {
	var report StageReport
	log := r.logger.With("stage", stage.Name)

	inputs, err := r.store.LoadLatest(ctx, stage.Input)
	if err != nil {
		return report, fmt.Errorf("%s: load %s records: %w", stage.Name, stage.Input, err)
	}
	done, err := r.processedIDs(ctx, stage.Output)
	if err != nil {
		return report, fmt.Errorf("%s: %w", stage.Name, err)
	}

	if limit > 0 && len(inputs) > limit {
		inputs = inputs[:limit]
	}

	var delay time.Duration
	if paced, ok := r.generator.(ports.Paced); ok {
		delay = paced.CallDelay()
	}

	log.Info("stage started", "records", len(inputs), "already_done", len(done))
	for i, issue := range inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Considered++
		if _, ok := done[issue.ID]; ok {
			report.Skipped++
			continue
		}

		log.Info("processing record", "n", i+1, "of", len(inputs), "id", issue.ID, "title", domain.Truncate(issue.Title, 50))
		genErr := r.enrich(ctx, stage, &issue)
		switch {
		case genErr == nil:
			report.Enriched++
		case errors.Is(genErr, ports.ErrQuotaExceeded):
			log.Error("provider quota exhausted, stopping stage", "id", issue.ID, "error", genErr)
			return report, fmt.Errorf("%s: record %s: %w", stage.Name, issue.ID, genErr)
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			log.Warn("record enrichment failed", "id", issue.ID, "error", genErr)
			stage.Fail(&issue)
			report.Failed++
		}

		if err := r.store.Append(ctx, stage.Output, issue); err != nil {
			return report, fmt.Errorf("%s: persist record %s: %w", stage.Name, issue.ID, err)
		}
		done[issue.ID] = struct{}{}

		if genErr == nil && delay > 0 {
			if err := r.sleep(ctx, delay); err != nil {
				return report, err
			}
		}
	}

	log.Info("stage finished", "enriched", report.Enriched, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

func (r *StageRunner) enrich(ctx context.Context, stage Stage, issue *domain.Issue) error {
	data := promptData{Issue: *issue}
	if stage.Thread != nil {
		th, err := stage.Thread.FetchThread(ctx, issue.SourceURL)
		if err != nil {
			return fmt.Errorf("fetch thread: %w", err)
		}
		data.Thread = th
	}

	var prompt bytes.Buffer
	if err := stage.Prompt.Execute(&prompt, data); err != nil {
		return fmt.Errorf("render prompt: %w", err)
	}

	gen, err := r.generator.Generate(ctx, prompt.String())
	if err != nil {
		return err
	}
	stage.Apply(issue, stage.Layout.Parse(gen.Text))
	return nil
}

// processedIDs reads the ids already written for stage; no output yet is not an error.
func (r *StageRunner) processedIDs(ctx context.Context, stage domain.Stage) (map[string]struct{}, error) {
	existing, err := r.store.LoadLatest(ctx, stage)
	if errors.Is(err, ports.ErrMissingInput) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", stage, err)
	}

	ids := make(map[string]struct{}, len(existing))
	for _, issue := range existing {
		ids[issue.ID] = struct{}{}
	}
	return ids, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
