package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "ACRScanner/1.0"

// ErrRateLimited is returned once every attempt was rate limited.
var ErrRateLimited = errors.New("rate limited")

// StatusError is returned for non-200 responses that are not rate limits.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response %s", e.Status)
}

// Backoff retries tracker requests that hit a rate limit, waiting
// Initial*2^attempt after each limited response. The zero value sends once.
type Backoff struct {
	Initial  time.Duration
	Attempts int
	// Sleep defaults to SleepContext.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Do sends the request built by newReq until it is not rate limited. A 200
// response is returned with an open body; any other status is a *StatusError.
func (b Backoff) Do(ctx context.Context, client *http.Client, newReq func() (*http.Request, error)) (*http.Response, error) {
	sleep := b.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := max(b.Attempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", req.URL, err)
		}

		if IsRateLimited(resp) {
			resp.Body.Close()
			wait := b.Initial * time.Duration(1<<attempt)
			if b.Logger != nil {
				b.Logger.Warn("rate limited, backing off", "url", req.URL.String(), "attempt", attempt+1, "wait", wait)
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrRateLimited, attempts)
}

// JSON decodes a successful response into out.
func (b Backoff) JSON(ctx context.Context, client *http.Client, newReq func() (*http.Request, error), out any) error {
	resp, err := b.Do(ctx, client, newReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", resp.Request.URL, err)
	}
	return nil
}

// Document fetches and parses an HTML page.
func (b Backoff) Document(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	resp, err := b.Do(ctx, client, func() (*http.Request, error) {
		return NewPageRequest(ctx, pageURL)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// IsRateLimited reports a 429, or GitHub's 403 with an exhausted quota.
func IsRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// NewPageRequest builds a GET for a tracker web page.
func NewPageRequest(ctx context.Context, pageURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// NewGitHubRequest builds a REST API GET, authenticated when token is set.
func NewGitHubRequest(ctx context.Context, endpoint, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// SleepContext pauses for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
