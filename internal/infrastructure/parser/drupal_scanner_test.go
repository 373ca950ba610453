package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/logging"
	"ACRScanner/internal/scanner"
)

func searchPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="project-issue"><tbody>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<tr>
  <td class="views-field views-field-title"><a href="/project/drupal/issues/%s">Issue %s lacks a label</a></td>
  <td class="views-field views-field-field-issue-status">Active</td>
  <td class="views-field views-field-field-issue-priority">Major</td>
  <td class="views-field views-field-field-issue-component">Claro theme</td>
  <td class="views-field views-field-created">3 days ago</td>
</tr>`, id, id)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

const issuePage = `<html><body>
<div class="field-name-body"><p>Screen readers announce   nothing.</p></div>
<div class="field-name-taxonomy-vocabulary-9"><a>Accessibility</a><a>wcag412</a></div>
</body></html>`

func testDrupalConfig(baseURL string) config.DrupalConfig {
	return config.DrupalConfig{
		BaseURL:        baseURL,
		GeneralTags:    []string{"accessibility"},
		Statuses:       []int{1, 8},
		PageSize:       50,
		MaxPages:       2,
		InitialBackoff: 5 * time.Second,
		MaxAttempts:    3,
		CooldownEvery:  5,
		CooldownPause:  30 * time.Second,
		MaxErrors:      15,
	}
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	if d > 0 {
		r.waits = append(r.waits, d)
	}
	return nil
}

func newTestDrupalScanner(t *testing.T, handler http.Handler) (*DrupalScanner, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewDrupalScanner(srv.Client(), testDrupalConfig(srv.URL), nil, logging.Discard())
	rec := &sleepRecorder{}
	s.sleep = rec.sleep
	return s, rec
}

func TestDrupalScannerMergesTagsAndDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/issues/search/drupal", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("issue_tags") {
		case "accessibility":
			fmt.Fprint(w, searchPage("100", "200"))
		case "wcag111":
			fmt.Fprint(w, searchPage("200"))
		default:
			fmt.Fprint(w, searchPage())
		}
	})
	mux.HandleFunc("/project/drupal/issues/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, issuePage)
	})

	s, _ := newTestDrupalScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "drupal", Tags: []string{"accessibility", "wcag111"}})
	require.NoError(t, err)
	require.Len(t, issues, 2)

	first, second := issues[0], issues[1]
	assert.Equal(t, "100", first.ID)
	assert.Equal(t, "200", second.ID)
	assert.Equal(t, domain.Unknown, first.Version, "missing version column")
	assert.Equal(t, "Screen readers announce nothing.", first.Description)
	assert.Equal(t, "4.1.2", first.WCAGCriterion, "criterion from detail tags")
	assert.Equal(t, "1.1.1", second.WCAGCriterion, "criterion from search tag")
	assert.Equal(t, "accessibility; wcag111; wcag412", second.Tags.String())
}

func TestDrupalScannerBacksOffThenSkipsTag(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/project/issues/search/drupal", func(w http.ResponseWriter, r *http.Request) {
		tag := r.URL.Query().Get("issue_tags")
		calls = append(calls, tag)
		if tag == "a11y" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, searchPage("7"))
	})
	mux.HandleFunc("/project/drupal/issues/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	s, rec := newTestDrupalScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "drupal", Tags: []string{"a11y", "wcag"}})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, rec.waits)
	assert.Equal(t, []string{"a11y", "a11y", "a11y", "wcag"}, calls)
	require.Len(t, issues, 1, "the next tag is still scanned")
	assert.Equal(t, "7", issues[0].ID)
	assert.Equal(t, issues[0].Title, issues[0].Description, "failed detail fetch keeps the title")
}

func TestDrupalScannerRetriesRateLimitedDetails(t *testing.T) {
	detailCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/project/issues/search/drupal", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage("300"))
	})
	mux.HandleFunc("/project/drupal/issues/", func(w http.ResponseWriter, r *http.Request) {
		detailCalls++
		if detailCalls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, issuePage)
	})

	s, rec := newTestDrupalScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "drupal", Tags: []string{"accessibility"}})
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, 2, detailCalls)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.waits)
	assert.Equal(t, "4.1.2", issues[0].WCAGCriterion)
	assert.Equal(t, "Screen readers announce nothing.", issues[0].Description)
}

func TestDrupalScannerAbortsAfterErrorThreshold(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/issues/search/drupal", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("issue_tags") == "first" {
			fmt.Fprint(w, searchPage("1"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/project/drupal/issues/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	})

	s, rec := newTestDrupalScanner(t, mux)
	s.cfg.CooldownEvery = 2
	s.cfg.MaxErrors = 3

	tags := []string{"first", "e1", "e2", "e3", "never"}
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "drupal", Tags: tags})
	require.NoError(t, err, "partial extraction does not fail")
	assert.Len(t, issues, 1)
	assert.Equal(t, []time.Duration{30 * time.Second}, rec.waits, "one cooldown pause")
}

func TestDrupalScannerRespectsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/issues/search/drupal", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage("1", "2", "3"))
	})
	mux.HandleFunc("/project/drupal/issues/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	})

	s, _ := newTestDrupalScanner(t, mux)
	issues, err := s.Scan(context.Background(), scanner.Request{Project: "drupal", Tags: []string{"a11y"}, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

func TestIssueSetCriterionPrecedence(t *testing.T) {
	set := newIssueSet(logging.Discard())
	set.merge(domain.Issue{ID: "1", WCAGCriterion: domain.Unknown, Tags: domain.TagSet{"a11y"}})
	set.merge(domain.Issue{ID: "1", WCAGCriterion: "1.4.3", Tags: domain.TagSet{"wcag143"}})
	set.merge(domain.Issue{ID: "1", WCAGCriterion: domain.Unknown, Tags: domain.TagSet{"A11Y"}})

	got := set.list()
	require.Len(t, got, 1)
	assert.Equal(t, "1.4.3", got[0].WCAGCriterion, "specific criterion wins over Unknown")
	assert.Equal(t, "a11y; wcag143", got[0].Tags.String())

	// Two specific values have no defined precedence; the later tag wins.
	set.merge(domain.Issue{ID: "1", WCAGCriterion: "2.4.7"})
	assert.Equal(t, "2.4.7", set.list()[0].WCAGCriterion)
}

func TestBuildSearchURL(t *testing.T) {
	t.Parallel()

	u, err := buildSearchURL(testDrupalConfig("https://www.drupal.org"), "drupal", "wcag1410", 2)
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/project/issues/search/drupal", parsed.Path)

	q := parsed.Query()
	assert.Equal(t, "wcag1410", q.Get("issue_tags"))
	assert.Equal(t, []string{"1", "8"}, q["status[]"])
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "50", q.Get("limit"))
}

func TestParseIssueRowSkipsRowsWithoutLink(t *testing.T) {
	t.Parallel()

	html := `<table><tbody><tr><td class="views-field-title">no link</td></tr></tbody></table>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	_, ok := parseIssueRow(doc.Find("tr").First(), "https://www.drupal.org", "drupal")
	assert.False(t, ok)
}

func TestDrupalTagCatalog(t *testing.T) {
	t.Parallel()

	tags := DrupalTagCatalog([]string{"accessibility", "a11y", "wcag"})
	assert.Equal(t, "accessibility", tags[0])
	assert.Equal(t, "wcag111", tags[3])
	for _, tag := range tags[3:] {
		assert.True(t, domain.IsCriterion(domain.CriterionFromTag(tag)), tag)
	}
}
