package parser

import (
	"context"
	"log/slog"
	"time"

	"ACRScanner/internal/domain"
)

// sleepFunc pauses for d or until ctx is done. Tests substitute a recorder.
type sleepFunc func(ctx context.Context, d time.Duration) error

// issueSet merges issues by id while keeping first-discovery order.
type issueSet struct {
	order  []string
	byID   map[string]*domain.Issue
	logger *slog.Logger
}

func newIssueSet(logger *slog.Logger) *issueSet {
	return &issueSet{byID: map[string]*domain.Issue{}, logger: logger}
}

// merge folds issue into the set. Tags are unioned; a specific criterion
// replaces Unknown, and between two specific values the later one wins.
func (s *issueSet) merge(issue domain.Issue) {
	existing, ok := s.byID[issue.ID]
	if !ok {
		copied := issue
		s.byID[issue.ID] = &copied
		s.order = append(s.order, issue.ID)
		return
	}

	existing.Tags = existing.Tags.Add(issue.Tags...)

	incoming := issue.WCAGCriterion
	if !domain.IsCriterion(incoming) || incoming == existing.WCAGCriterion {
		return
	}
	if domain.IsCriterion(existing.WCAGCriterion) && s.logger != nil {
		s.logger.Debug("criterion conflict, keeping latest",
			"issue", issue.ID, "previous", existing.WCAGCriterion, "latest", incoming)
	}
	existing.WCAGCriterion = incoming
}

func (s *issueSet) len() int {
	return len(s.order)
}

func (s *issueSet) has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *issueSet) list() []domain.Issue {
	out := make([]domain.Issue, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// errorBudget counts failures across an extraction. Every cooldownEvery
// errors it pauses; reaching maxErrors tells the caller to stop.
type errorBudget struct {
	count         int
	cooldownEvery int
	cooldownPause time.Duration
	maxErrors     int
	sleep         sleepFunc
	logger        *slog.Logger
}

// record registers one failure and reports whether extraction must stop.
func (b *errorBudget) record(ctx context.Context) bool {
	b.count++
	if b.maxErrors > 0 && b.count >= b.maxErrors {
		b.logger.Error("error threshold reached, aborting extraction", "errors", b.count)
		return true
	}
	if b.cooldownEvery > 0 && b.count%b.cooldownEvery == 0 {
		b.logger.Warn("cooling down after repeated errors", "errors", b.count, "pause", b.cooldownPause)
		if err := b.sleep(ctx, b.cooldownPause); err != nil {
			return true
		}
	}
	return false
}
