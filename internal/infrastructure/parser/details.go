package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Details is the best-effort secondary view of one issue.
type Details struct {
	Tags []string
	// Description replaces the listing's description when non-empty.
	Description string
}

// DetailFetcher loads Details for an issue URL.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, issueURL string) (Details, error)
}

// CachedDetails memoizes successful lookups per URL and never returns an
// error: a failed fetch yields empty Details and is retried on the next lookup.
type CachedDetails struct {
	inner  DetailFetcher
	cache  map[string]Details
	logger *slog.Logger
}

// NewCachedDetails wraps inner.
func NewCachedDetails(inner DetailFetcher, logger *slog.Logger) *CachedDetails {
	return &CachedDetails{inner: inner, cache: map[string]Details{}, logger: logger}
}

// Lookup returns cached details for issueURL, fetching them on first use.
func (c *CachedDetails) Lookup(ctx context.Context, issueURL string) Details {
	if d, ok := c.cache[issueURL]; ok {
		return d
	}
	d, err := c.inner.FetchDetails(ctx, issueURL)
	if err != nil {
		c.logger.Warn("detail fetch failed, continuing without tags", "url", issueURL, "error", err)
		return Details{}
	}
	c.cache[issueURL] = d
	return d
}

// DrupalDetails scrapes tags and the issue body from a Drupal.org issue page.
type DrupalDetails struct {
	client  *http.Client
	backoff Backoff
}

// NewDrupalDetails builds a page scraper.
func NewDrupalDetails(client *http.Client, backoff Backoff) *DrupalDetails {
	return &DrupalDetails{client: client, backoff: backoff}
}

// FetchDetails implements DetailFetcher.
func (d *DrupalDetails) FetchDetails(ctx context.Context, issueURL string) (Details, error) {
	doc, err := d.backoff.Document(ctx, d.client, issueURL)
	if err != nil {
		return Details{}, err
	}

	var out Details
	doc.Find("div.field-name-taxonomy-vocabulary-9 a").Each(func(_ int, a *goquery.Selection) {
		if tag := strings.TrimSpace(a.Text()); tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	})
	out.Description = collapseSpace(doc.Find("div.field-name-body").First().Text())
	return out, nil
}

// GitHubDetails reads an issue's labels from the REST API.
type GitHubDetails struct {
	client  *http.Client
	apiURL  string
	token   string
	backoff Backoff
}

// NewGitHubDetails targets apiURL (https://api.github.com by default).
func NewGitHubDetails(client *http.Client, apiURL, token string, backoff Backoff) *GitHubDetails {
	return &GitHubDetails{client: client, apiURL: strings.TrimRight(apiURL, "/"), token: token, backoff: backoff}
}

// FetchDetails implements DetailFetcher for https://github.com/o/r/issues/n URLs.
func (g *GitHubDetails) FetchDetails(ctx context.Context, issueURL string) (Details, error) {
	owner, repo, number, ok := SplitGitHubIssueURL(issueURL)
	if !ok {
		return Details{}, fmt.Errorf("not a github issue url: %s", issueURL)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues/%s/labels", g.apiURL, owner, repo, number)
	var labels []githubLabel
	err := g.backoff.JSON(ctx, g.client, func() (*http.Request, error) {
		return NewGitHubRequest(ctx, endpoint, g.token)
	}, &labels)
	if err != nil {
		return Details{}, fmt.Errorf("labels: %w", err)
	}

	out := Details{Tags: make([]string, 0, len(labels))}
	for _, l := range labels {
		out.Tags = append(out.Tags, l.Name)
	}
	return out, nil
}

// SplitGitHubIssueURL parses https://github.com/owner/repo/issues/N, ignoring any fragment.
func SplitGitHubIssueURL(issueURL string) (owner, repo, number string, ok bool) {
	rest, found := strings.CutPrefix(issueURL, "https://github.com/")
	if !found {
		return "", "", "", false
	}
	rest, _, _ = strings.Cut(rest, "#")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 4 || parts[2] != "issues" || parts[3] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[3], true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
