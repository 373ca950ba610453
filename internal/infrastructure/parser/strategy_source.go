package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
	"ACRScanner/internal/scanner"
)

// StrategySource implements IssueSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	// forced names a scanner to use regardless of CanHandle.
	forced string
	logger *slog.Logger
}

var _ ports.IssueSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry. A non-empty forced name
// bypasses project-based selection.
func NewStrategySource(reg *scanner.Registry, forced string, log *slog.Logger) *StrategySource {
	if log == nil {
		log = slog.Default()
	}
	return &StrategySource{
		registry: reg,
		forced:   strings.ToLower(strings.TrimSpace(forced)),
		logger:   log.With("component", "strategy_source"),
	}
}

// NormalizeProject turns "https://github.com/owner/repo/" into "owner/repo";
// other identifiers are only trimmed.
func NormalizeProject(project string) string {
	project = strings.TrimSpace(project)
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if rest, ok := strings.CutPrefix(project, prefix); ok {
			project = strings.TrimSuffix(strings.TrimRight(rest, "/"), ".git")
			break
		}
	}
	return strings.Trim(project, "/")
}

// FetchIssues picks the scanner that handles project and returns its issues
// with duplicate ids removed.
func (s *StrategySource) FetchIssues(ctx context.Context, project string, tags []string, limit int) ([]domain.Issue, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	project = NormalizeProject(project)
	strategy, err := s.strategy(project)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetch issues", "project", project, "scanner", strategy.Name(), "tags", len(tags), "limit", limit)

	results, err := strategy.Scan(ctx, scanner.Request{Project: project, Tags: tags, Limit: limit})
	if err != nil && len(results) == 0 {
		return nil, fmt.Errorf("scan project %s: %w", project, err)
	}
	if err != nil {
		s.logger.Warn("scan interrupted, keeping partial results", "project", project, "issues", len(results), "error", err)
	}

	seen := make(map[string]struct{}, len(results))
	unique := results[:0]
	for _, issue := range results {
		if _, ok := seen[issue.ID]; ok {
			continue
		}
		seen[issue.ID] = struct{}{}
		if issue.Project == "" {
			issue.Project = project
		}
		unique = append(unique, issue)
	}

	s.logger.Debug("strategy source done", "total_issues", len(unique))
	return unique, err
}

func (s *StrategySource) strategy(project string) (scanner.Scanner, error) {
	if s.forced != "" {
		return s.registry.Resolve(s.forced)
	}
	return s.registry.Select(project)
}
