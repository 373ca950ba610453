// Package thread loads issue discussions for the analyze-thread stage.
package thread

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/infrastructure/parser"
	"ACRScanner/internal/ports"
)

// source retrieves one platform's thread.
type source interface {
	fetch(ctx context.Context, issueURL string) (*domain.Thread, error)
}

// Fetcher dispatches by URL host to the GitHub API or the Drupal page scraper.
type Fetcher struct {
	github source
	drupal source
	logger *slog.Logger
}

var _ ports.ThreadFetcher = (*Fetcher)(nil)

// NewFetcher builds both strategies around one HTTP client. Each source backs
// off on rate limits with its tracker's settings.
func NewFetcher(cfg config.ThreadConfig, trackers config.TrackerConfig, logger *slog.Logger) *Fetcher {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		client.Timeout = 30 * time.Second
	}
	logger = logger.With("component", "thread_fetcher")
	limits := limits{maxComments: cfg.MaxComments, maxBody: cfg.MaxBodyChars}
	gh, dr := trackers.GitHub, trackers.Drupal
	return &Fetcher{
		github: &githubSource{
			client:  client,
			apiURL:  strings.TrimRight(gh.APIURL, "/"),
			token:   gh.Token,
			limits:  limits,
			backoff: parser.Backoff{Initial: gh.InitialBackoff, Attempts: gh.MaxAttempts, Logger: logger},
		},
		drupal: &drupalSource{
			client:  client,
			limits:  limits,
			backoff: parser.Backoff{Initial: dr.InitialBackoff, Attempts: dr.MaxAttempts, Logger: logger},
		},
		logger: logger,
	}
}

// FetchThread returns nil when the URL is not a known tracker or the fetch
// fails; callers continue without thread context. Only cancellation is an error.
func (f *Fetcher) FetchThread(ctx context.Context, issueURL string) (*domain.Thread, error) {
	var src source
	switch host := hostOf(issueURL); {
	case host == "github.com":
		src = f.github
	case host == "drupal.org" || strings.HasSuffix(host, ".drupal.org"):
		src = f.drupal
	default:
		f.logger.Debug("no thread source for url", "url", issueURL)
		return nil, nil
	}

	th, err := src.fetch(ctx, issueURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("thread fetch failed", "url", issueURL, "error", err)
		return nil, nil
	}
	f.logger.Debug("thread fetched", "url", issueURL, "comments", len(th.Comments))
	return th, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}

// limits bound the prompt size contributed by one thread.
type limits struct {
	maxComments int
	maxBody     int
}

func (l limits) full(n int) bool {
	return l.maxComments > 0 && n >= l.maxComments
}

func (l limits) body(s string) string {
	return domain.Truncate(strings.TrimSpace(s), l.maxBody)
}

// issueLink strips any fragment so comment anchors can be appended.
func issueLink(issueURL string) string {
	base, _, _ := strings.Cut(issueURL, "#")
	return base
}
