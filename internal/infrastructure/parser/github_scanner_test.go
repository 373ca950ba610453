package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/logging"
	"ACRScanner/internal/scanner"
)

func newTestGitHubScanner(t *testing.T, handler http.Handler) (*GitHubScanner, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.GitHubConfig{
		APIURL:         srv.URL,
		Token:          "ghp_test",
		PageSize:       2,
		State:          "open",
		LabelKeywords:  []string{"access", "a11y", "wcag"},
		InitialBackoff: time.Second,
		MaxAttempts:    2,
	}
	s := NewGitHubScanner(srv.Client(), cfg, nil, logging.Discard())
	rec := &sleepRecorder{}
	s.sleep = rec.sleep
	return s, rec
}

func issueJSON(number int, labels ...string) string {
	names := ""
	for i, l := range labels {
		if i > 0 {
			names += ","
		}
		names += fmt.Sprintf(`{"name":%q}`, l)
	}
	return fmt.Sprintf(`{"number":%d,"title":"Issue %d","body":"","html_url":"https://github.com/acme/widgets/issues/%d","state":"open","created_at":"2024-02-03T10:00:00Z","labels":[%s]}`,
		number, number, number, names)
}

func TestGitHubScannerDiscoversLabelsAndPaginates(t *testing.T) {
	var authHeaders []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/labels", func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		fmt.Fprint(w, `[{"name":"bug"},{"name":"Accessibility"},{"name":"wcag 1.4.3"}]`)
	})
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "open", q.Get("state"))
		assert.Equal(t, "2", q.Get("per_page"))
		switch q.Get("labels") + "#" + q.Get("page") {
		case "Accessibility#1":
			fmt.Fprintf(w, "[%s,%s]", issueJSON(1, "Accessibility"),
				`{"number":2,"title":"PR","html_url":"https://github.com/acme/widgets/pull/2","pull_request":{"url":"x"}}`)
		case "Accessibility#2":
			fmt.Fprintf(w, "[%s]", issueJSON(3, "Accessibility"))
		case "wcag 1.4.3#1":
			fmt.Fprintf(w, "[%s]", issueJSON(1, "Accessibility", "wcag 1.4.3"))
		default:
			fmt.Fprint(w, "[]")
		}
	})
	mux.HandleFunc("/repos/acme/widgets/issues/1/labels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"Accessibility"},{"name":"keyboard"}]`)
	})
	mux.HandleFunc("/repos/acme/widgets/issues/3/labels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	s, _ := newTestGitHubScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "acme/widgets"})
	require.NoError(t, err)

	require.Len(t, issues, 2, "PR skipped, duplicate merged")
	assert.Equal(t, "1", issues[0].ID)
	assert.Equal(t, "3", issues[1].ID)
	first := issues[0]
	assert.Equal(t, "1.4.3", first.WCAGCriterion)
	assert.Equal(t, "Accessibility; wcag 1.4.3; keyboard", first.Tags.String())
	assert.Equal(t, "2024-02-03", first.Created)
	assert.Equal(t, "Issue 1", first.Description)
	assert.Equal(t, domain.Unknown, first.Priority)
	require.NotEmpty(t, authHeaders)
	assert.Equal(t, "Bearer ghp_test", authHeaders[0])
}

func TestGitHubScannerFallsBackToAccessibilityLabel(t *testing.T) {
	var requested []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/labels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"bug"}]`)
	})
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Query().Get("labels"))
		fmt.Fprint(w, "[]")
	})

	s, _ := newTestGitHubScanner(t, mux)
	_, err := s.Scan(context.Background(), scanner.Request{Project: "acme/widgets"})
	require.NoError(t, err)
	assert.Equal(t, []string{"accessibility"}, requested)
}

func TestGitHubScannerBacksOffOnRateLimit(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	})

	s, rec := newTestGitHubScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "acme/widgets", Tags: []string{"a11y"}})
	require.NoError(t, err, "rate limiting does not fail the scan")
	assert.Empty(t, issues)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestGitHubScannerRetriesRateLimitedLabels(t *testing.T) {
	labelCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s]", issueJSON(4, "a11y"))
	})
	mux.HandleFunc("/repos/acme/widgets/issues/4/labels", func(w http.ResponseWriter, r *http.Request) {
		labelCalls++
		assert.Equal(t, "ACRScanner/1.0", r.Header.Get("User-Agent"))
		if labelCalls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[{"name":"a11y"},{"name":"wcag 2.1.1"}]`)
	})

	s, rec := newTestGitHubScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "acme/widgets", Tags: []string{"a11y"}})
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, 2, labelCalls)
	assert.Equal(t, []time.Duration{time.Second}, rec.waits)
	assert.Equal(t, "2.1.1", issues[0].WCAGCriterion)
}

func TestSplitGitHubIssueURL(t *testing.T) {
	t.Parallel()

	owner, repo, number, ok := SplitGitHubIssueURL("https://github.com/acme/widgets/issues/42#issuecomment-1")
	require.True(t, ok)
	assert.Equal(t, []string{"acme", "widgets", "42"}, []string{owner, repo, number})

	_, _, _, ok = SplitGitHubIssueURL("https://github.com/acme/widgets/pull/42")
	assert.False(t, ok, "pull request url")
	_, _, _, ok = SplitGitHubIssueURL("https://www.drupal.org/project/drupal/issues/1")
	assert.False(t, ok, "drupal url")
}
