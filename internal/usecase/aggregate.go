package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// Group is the set of issues sharing one criterion.
type Group struct {
	Criterion string
	Issues    []domain.Issue
}

// Aggregator folds enriched issues into one judgment per criterion.
type Aggregator struct {
	store     ports.RecordStore
	generator ports.TextGenerator
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewAggregator wires the store and the text generator.
func NewAggregator(store ports.RecordStore, generator ports.TextGenerator, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		generator: generator,
		sleep:     sleepContext,
		logger:    logger.With("stage", "consolidate"),
	}
}

// Consolidate reads the newest enriched records (thread-analyzed, else
// summarized), and stores one judgment per group. A stored judgment is reused
// only while its issue count still matches the group; otherwise the group is
// judged again and the new judgment replaces it. The returned slice covers
// every group.
func (a *Aggregator) Consolidate(ctx context.Context) ([]domain.Judgment, error) {
	records, err := a.loadRecords(ctx)
	if err != nil {
		return nil, err
	}

	existing := map[string]domain.Judgment{}
	stored, err := a.store.LoadJudgments(ctx)
	switch {
	case errors.Is(err, ports.ErrMissingInput):
	case err != nil:
		return nil, fmt.Errorf("consolidate: load judgments: %w", err)
	default:
		for _, j := range stored {
			existing[j.CriterionID] = j
		}
	}

	groups := GroupByCriterion(Reclassify(records))
	a.logger.Info("consolidating", "records", len(records), "groups", len(groups), "already_done", len(existing))

	var delay time.Duration
	if paced, ok := a.generator.(ports.Paced); ok {
		delay = paced.CallDelay()
	}

	judgments := make([]domain.Judgment, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return judgments, err
		}
		if j, ok := existing[g.Criterion]; ok {
			if j.IssueCount == len(g.Issues) {
				judgments = append(judgments, j)
				continue
			}
			a.logger.Info("criterion group changed, re-judging", "criterion", g.Criterion, "stored", j.IssueCount, "issues", len(g.Issues))
		}

		a.logger.Info("consolidating criterion", "criterion", g.Criterion, "issues", len(g.Issues))
		j, err := a.judge(ctx, g)
		if errors.Is(err, ports.ErrQuotaExceeded) {
			a.logger.Error("provider quota exhausted, stopping stage", "criterion", g.Criterion, "error", err)
			return judgments, fmt.Errorf("consolidate: criterion %s: %w", g.Criterion, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return judgments, ctx.Err()
			}
			a.logger.Warn("consolidation failed", "criterion", g.Criterion, "error", err)
			j = domain.Judgment{
				CriterionID: g.Criterion,
				Level:       domain.LevelNotEvaluated,
				Remarks:     domain.Truncate("Error during consolidation: "+err.Error(), domain.MaxRemarksLength),
				IssueCount:  len(g.Issues),
			}
		}

		if err := a.store.AppendJudgment(ctx, j); err != nil {
			return judgments, fmt.Errorf("consolidate: persist criterion %s: %w", g.Criterion, err)
		}
		judgments = append(judgments, j)

		if err == nil && delay > 0 {
			if err := a.sleep(ctx, delay); err != nil {
				return judgments, err
			}
		}
	}
	return judgments, nil
}

func (a *Aggregator) loadRecords(ctx context.Context) ([]domain.Issue, error) {
	records, err := a.store.LoadLatest(ctx, domain.StageThreadAnalyzed)
	if errors.Is(err, ports.ErrMissingInput) {
		a.logger.Info("no thread analysis found, using summarized records")
		records, err = a.store.LoadLatest(ctx, domain.StageSummarized)
	}
	if err != nil {
		return nil, fmt.Errorf("consolidate: load records: %w", err)
	}
	return records, nil
}

func (a *Aggregator) judge(ctx context.Context, g Group) (domain.Judgment, error) {
	var prompt bytes.Buffer
	if err := consolidateTemplate.Execute(&prompt, groupData{Criterion: g.Criterion, Issues: g.Issues}); err != nil {
		return domain.Judgment{}, fmt.Errorf("render prompt: %w", err)
	}

	gen, err := a.generator.Generate(ctx, prompt.String())
	if err != nil {
		return domain.Judgment{}, err
	}

	parsed := judgmentLayout.Parse(gen.Text)
	level, ok := domain.ParseConformanceLevel(parsed.Get(SectionLevel, ""))
	if !ok {
		level = domain.LevelPartiallySupports
	}
	return domain.Judgment{
		CriterionID: g.Criterion,
		Level:       level,
		Remarks:     domain.Truncate(parsed.Get(SectionRemarks, ""), domain.MaxRemarksLength),
		IssueCount:  len(g.Issues),
	}, nil
}

// reclassifyFields are scanned in order for an embedded criterion.
func reclassifyFields(issue domain.Issue) []string {
	return []string{issue.ACRNote, issue.DevNote, issue.ThreadProblem, issue.ThreadTLDR, issue.AIWCAGCriterion}
}

// Reclassify assigns a criterion to unmapped records whose free-text fields
// mention one; the first match wins. The input slice is not modified.
func Reclassify(records []domain.Issue) []domain.Issue {
	out := make([]domain.Issue, len(records))
	copy(out, records)
	for i := range out {
		if domain.IsCriterion(out[i].WCAGCriterion) {
			continue
		}
		for _, text := range reclassifyFields(out[i]) {
			if c := domain.FindCriterion(text); c != "" {
				out[i].WCAGCriterion = c
				break
			}
		}
	}
	return out
}

// GroupByCriterion partitions records by criterion triple, in ascending
// criterion order, with the General bucket last. Repeated ids count once.
func GroupByCriterion(records []domain.Issue) []Group {
	byKey := map[string]*Group{}
	seen := map[string]struct{}{}
	for _, issue := range records {
		if _, dup := seen[issue.ID]; dup {
			continue
		}
		seen[issue.ID] = struct{}{}

		key := strings.TrimSpace(issue.WCAGCriterion)
		if !domain.IsCriterion(key) {
			key = domain.General
		}
		g, ok := byKey[key]
		if !ok {
			g = &Group{Criterion: key}
			byKey[key] = g
		}
		g.Issues = append(g.Issues, issue)
	}

	groups := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return domain.CriterionLess(groups[i].Criterion, groups[j].Criterion)
	})
	return groups
}
