package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/scanner"
)

// fallbackLabel is searched when label discovery finds nothing.
const fallbackLabel = "accessibility"

type githubLabel struct {
	Name string `json:"name"`
}

type githubMilestone struct {
	Title string `json:"title"`
}

type githubIssue struct {
	Number      int              `json:"number"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	HTMLURL     string           `json:"html_url"`
	State       string           `json:"state"`
	CreatedAt   time.Time        `json:"created_at"`
	Labels      []githubLabel    `json:"labels"`
	Milestone   *githubMilestone `json:"milestone"`
	PullRequest json.RawMessage  `json:"pull_request"`
}

// GitHubScanner lists labeled issues of owner/repo through the REST API.
type GitHubScanner struct {
	client  *http.Client
	cfg     config.GitHubConfig
	details *CachedDetails
	sleep   sleepFunc
	logger  *slog.Logger
}

// NewGitHubScanner wires an HTTP client; a nil client gets a 30s timeout.
func NewGitHubScanner(client *http.Client, cfg config.GitHubConfig, details DetailFetcher, logger *slog.Logger) *GitHubScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	logger = logger.With("component", "github_scanner")
	g := &GitHubScanner{
		client: client,
		cfg:    cfg,
		sleep:  SleepContext,
		logger: logger,
	}
	if details == nil {
		details = NewGitHubDetails(client, cfg.APIURL, cfg.Token, g.backoff())
	}
	g.details = NewCachedDetails(details, logger)
	return g
}

// Name identifies the strategy inside the registry.
func (g *GitHubScanner) Name() string {
	return "github"
}

// CanHandle accepts "owner/repo" identifiers.
func (g *GitHubScanner) CanHandle(project string) bool {
	owner, repo, ok := strings.Cut(project, "/")
	return ok && owner != "" && repo != ""
}

// Scan collects open issues for each label, skipping pull requests.
func (g *GitHubScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Issue, error) {
	labels := req.Tags
	if len(labels) == 0 {
		discovered, err := g.discoverLabels(ctx, req.Project)
		if err != nil {
			g.logger.Warn("label discovery failed", "repo", req.Project, "error", err)
		}
		labels = discovered
	}
	if len(labels) == 0 {
		labels = []string{fallbackLabel}
	}
	g.logger.Info("searching labels", "repo", req.Project, "labels", labels)

	set := newIssueSet(g.logger)

search:
	for _, label := range labels {
		for page := 1; ; page++ {
			var items []githubIssue
			err := g.getJSON(ctx, g.issuesURL(req.Project, label, page), &items)
			if err != nil {
				if ctx.Err() != nil {
					return g.enrich(ctx, set.list()), ctx.Err()
				}
				g.logger.Warn("skipping label", "label", label, "page", page, "error", err)
				break
			}
			if len(items) == 0 {
				break
			}

			for _, item := range items {
				if len(item.PullRequest) > 0 && string(item.PullRequest) != "null" {
					continue
				}
				issue := toIssue(item, req.Project)
				if req.Limit > 0 && set.len() >= req.Limit && !set.has(issue.ID) {
					break search
				}
				set.merge(issue)
			}

			if len(items) < g.cfg.PageSize {
				break
			}
		}
	}

	g.logger.Info("github extraction finished", "repo", req.Project, "issues", set.len())
	return g.enrich(ctx, set.list()), nil
}

func (g *GitHubScanner) enrich(ctx context.Context, issues []domain.Issue) []domain.Issue {
	for i := range issues {
		if ctx.Err() != nil {
			break
		}
		details := g.details.Lookup(ctx, issues[i].SourceURL)
		issues[i].Tags = issues[i].Tags.Add(details.Tags...)
		if !domain.IsCriterion(issues[i].WCAGCriterion) {
			issues[i].WCAGCriterion = criterionFromLabels(details.Tags)
		}
	}
	return issues
}

// discoverLabels lists every repository label and keeps the ones matching a keyword.
func (g *GitHubScanner) discoverLabels(ctx context.Context, repo string) ([]string, error) {
	var matched []string
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/repos/%s/labels?per_page=100&page=%d", g.cfg.APIURL, repo, page)
		var labels []githubLabel
		if err := g.getJSON(ctx, endpoint, &labels); err != nil {
			return matched, err
		}
		for _, l := range labels {
			if matchesKeyword(l.Name, g.cfg.LabelKeywords) {
				matched = append(matched, l.Name)
			}
		}
		if len(labels) < 100 {
			return matched, nil
		}
	}
}

func (g *GitHubScanner) issuesURL(repo, label string, page int) string {
	query := url.Values{}
	query.Set("labels", label)
	query.Set("state", g.cfg.State)
	query.Set("per_page", strconv.Itoa(g.cfg.PageSize))
	query.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s/repos/%s/issues?%s", g.cfg.APIURL, repo, query.Encode())
}

// getJSON performs a GET with backoff on 429 and on 403 with an exhausted rate limit.
func (g *GitHubScanner) getJSON(ctx context.Context, endpoint string, out any) error {
	return g.backoff().JSON(ctx, g.client, func() (*http.Request, error) {
		return NewGitHubRequest(ctx, endpoint, g.cfg.Token)
	}, out)
}

// backoff pauses through g.sleep at call time so tests can swap it.
func (g *GitHubScanner) backoff() Backoff {
	return Backoff{
		Initial:  g.cfg.InitialBackoff,
		Attempts: g.cfg.MaxAttempts,
		Sleep:    func(ctx context.Context, wait time.Duration) error { return g.sleep(ctx, wait) },
		Logger:   g.logger,
	}
}

func toIssue(item githubIssue, repo string) domain.Issue {
	issue := domain.Issue{
		ID:          strconv.Itoa(item.Number),
		Title:       item.Title,
		Description: item.Body,
		SourceURL:   item.HTMLURL,
		Project:     repo,
		Status:      item.State,
	}
	if strings.TrimSpace(item.Body) == "" {
		issue.Description = item.Title
	}
	if item.Milestone != nil {
		issue.Version = item.Milestone.Title
	}
	if !item.CreatedAt.IsZero() {
		issue.Created = item.CreatedAt.Format("2006-01-02")
	}

	names := make([]string, 0, len(item.Labels))
	for _, l := range item.Labels {
		names = append(names, l.Name)
	}
	issue.Tags = issue.Tags.Add(names...)
	issue.WCAGCriterion = criterionFromLabels(names)
	issue.Normalize()
	return issue
}

// criterionFromLabels reads "wcag1410" or "WCAG 1.4.10" style labels.
func criterionFromLabels(labels []string) string {
	for _, label := range labels {
		if c := domain.CriterionFromTag(label); c != domain.Unknown {
			return c
		}
		if c := domain.FindCriterion(label); c != "" {
			return c
		}
	}
	return domain.Unknown
}

func matchesKeyword(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
