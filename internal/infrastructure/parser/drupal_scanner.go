package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/scanner"
)

// criterionTags lists every WCAG 2.0-2.2 success criterion as a Drupal
// issue tag suffix, e.g. "1410" for 1.4.10.
var criterionTags = []string{
	"111", "121", "122", "123", "124", "125", "126", "127", "128", "129",
	"131", "132", "133", "134", "135", "136",
	"141", "142", "143", "144", "145", "146", "147", "148", "149", "1410", "1411", "1412", "1413",
	"211", "212", "213", "214",
	"221", "222", "223", "224", "225", "226",
	"231", "232", "233",
	"241", "242", "243", "244", "245", "246", "247", "248", "249", "2410", "2411", "2412", "2413",
	"251", "252", "253", "254", "255", "256", "257", "258",
	"311", "312", "313", "314", "315", "316",
	"321", "322", "323", "324", "325", "326",
	"331", "332", "333", "334", "335", "336", "337", "338", "339",
	"411", "412", "413",
}

// DrupalTagCatalog returns the general tags followed by one wcagNNN tag per criterion.
func DrupalTagCatalog(general []string) []string {
	tags := make([]string, 0, len(general)+len(criterionTags))
	tags = append(tags, general...)
	for _, sc := range criterionTags {
		tags = append(tags, "wcag"+sc)
	}
	return tags
}

// DrupalScanner walks the Drupal.org issue search once per tag.
type DrupalScanner struct {
	client  *http.Client
	cfg     config.DrupalConfig
	details *CachedDetails
	sleep   sleepFunc
	logger  *slog.Logger
}

// NewDrupalScanner wires an HTTP client; a nil client gets a 30s timeout.
func NewDrupalScanner(client *http.Client, cfg config.DrupalConfig, details DetailFetcher, logger *slog.Logger) *DrupalScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger = logger.With("component", "drupal_scanner")
	d := &DrupalScanner{
		client: client,
		cfg:    cfg,
		sleep:  SleepContext,
		logger: logger,
	}
	if details == nil {
		details = NewDrupalDetails(client, d.backoff())
	}
	d.details = NewCachedDetails(details, logger)
	return d
}

// Name identifies the strategy inside the registry.
func (d *DrupalScanner) Name() string {
	return "drupal"
}

// CanHandle accepts bare project names such as "drupal".
func (d *DrupalScanner) CanHandle(project string) bool {
	return project != "" && !strings.Contains(project, "/")
}

// Scan searches every tag and returns issues merged by id. Pages that still
// fail after backoff skip the tag; crossing the error threshold stops early
// and returns what was collected.
func (d *DrupalScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Issue, error) {
	tags := req.Tags
	if len(tags) == 0 {
		tags = DrupalTagCatalog(d.cfg.GeneralTags)
	}

	set := newIssueSet(d.logger)
	budget := &errorBudget{
		cooldownEvery: d.cfg.CooldownEvery,
		cooldownPause: d.cfg.CooldownPause,
		maxErrors:     d.cfg.MaxErrors,
		sleep:         d.sleep,
		logger:        d.logger,
	}

search:
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return d.enrich(ctx, set.list()), err
		}

		criterion := domain.CriterionFromTag(tag)
		for page := 0; d.cfg.MaxPages <= 0 || page < d.cfg.MaxPages; page++ {
			doc, err := d.fetchPage(ctx, req.Project, tag, page)
			if err != nil {
				if ctx.Err() != nil {
					return d.enrich(ctx, set.list()), ctx.Err()
				}
				d.logger.Warn("skipping tag", "tag", tag, "page", page, "error", err)
				if budget.record(ctx) {
					break search
				}
				break
			}

			rows := d.extractIssues(doc, req.Project)
			d.logger.Debug("page parsed", "tag", tag, "page", page, "rows", len(rows))
			for _, issue := range rows {
				if req.Limit > 0 && set.len() >= req.Limit && !set.has(issue.ID) {
					break search
				}
				issue.Tags = issue.Tags.Add(tag)
				issue.WCAGCriterion = criterion
				set.merge(issue)
			}

			if err := d.sleep(ctx, d.cfg.RequestDelay); err != nil {
				return d.enrich(ctx, set.list()), err
			}
			if len(rows) < d.cfg.PageSize {
				break
			}
		}
	}

	d.logger.Info("drupal extraction finished", "project", req.Project, "issues", set.len(), "errors", budget.count)
	return d.enrich(ctx, set.list()), nil
}

// enrich merges secondary tags and the issue body into every issue.
func (d *DrupalScanner) enrich(ctx context.Context, issues []domain.Issue) []domain.Issue {
	for i := range issues {
		if ctx.Err() != nil {
			break
		}
		details := d.details.Lookup(ctx, issues[i].SourceURL)
		issues[i].Tags = issues[i].Tags.Add(details.Tags...)
		if details.Description != "" {
			issues[i].Description = details.Description
		}
		if !domain.IsCriterion(issues[i].WCAGCriterion) {
			for _, tag := range details.Tags {
				if c := domain.CriterionFromTag(tag); c != domain.Unknown {
					issues[i].WCAGCriterion = c
					break
				}
			}
		}
	}
	return issues
}

// fetchPage requests one search page, backing off on 429 up to MaxAttempts.
func (d *DrupalScanner) fetchPage(ctx context.Context, project, tag string, page int) (*goquery.Document, error) {
	pageURL, err := buildSearchURL(d.cfg, project, tag, page)
	if err != nil {
		return nil, err
	}
	doc, err := d.backoff().Document(ctx, d.client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("tag %s page %d: %w", tag, page, err)
	}
	return doc, nil
}

// backoff pauses through d.sleep at call time so tests can swap it.
func (d *DrupalScanner) backoff() Backoff {
	return Backoff{
		Initial:  d.cfg.InitialBackoff,
		Attempts: d.cfg.MaxAttempts,
		Sleep:    func(ctx context.Context, wait time.Duration) error { return d.sleep(ctx, wait) },
		Logger:   d.logger,
	}
}

func (d *DrupalScanner) extractIssues(doc *goquery.Document, project string) []domain.Issue {
	var issues []domain.Issue
	doc.Find("table.project-issue tbody tr").Each(func(_ int, row *goquery.Selection) {
		issue, ok := parseIssueRow(row, d.cfg.BaseURL, project)
		if ok {
			issues = append(issues, issue)
		}
	})
	return issues
}

func parseIssueRow(row *goquery.Selection, baseURL, project string) (domain.Issue, bool) {
	link := row.Find("td.views-field-title a").First()
	href, exists := link.Attr("href")
	title := strings.TrimSpace(link.Text())
	if !exists || title == "" {
		return domain.Issue{}, false
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(baseURL, "/") + href
	}

	id := path.Base(strings.TrimSuffix(href, "/"))
	if id == "" || id == "." || id == "/" {
		return domain.Issue{}, false
	}

	cell := func(class string) string {
		return strings.TrimSpace(row.Find("td." + class).First().Text())
	}

	issue := domain.Issue{
		ID:          id,
		Title:       title,
		Description: title,
		SourceURL:   href,
		Project:     project,
		Status:      cell("views-field-field-issue-status"),
		Priority:    cell("views-field-field-issue-priority"),
		Component:   cell("views-field-field-issue-component"),
		Version:     cell("views-field-field-issue-version"),
		Created:     cell("views-field-created"),
	}
	issue.Normalize()
	return issue, true
}

func buildSearchURL(cfg config.DrupalConfig, project, tag string, page int) (string, error) {
	base := fmt.Sprintf("%s/project/issues/search/%s", strings.TrimSuffix(cfg.BaseURL, "/"), url.PathEscape(project))
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid search url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("issue_tags", tag)
	for _, status := range cfg.Statuses {
		query.Add("status[]", strconv.Itoa(status))
	}
	if cfg.PageSize > 0 {
		query.Set("limit", strconv.Itoa(cfg.PageSize))
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
