package domain

import "strings"

const (
	// Unknown marks tracker metadata or a criterion that could not be determined.
	Unknown = "Unknown"
	// General is the catch-all criterion bucket for unmapped issues.
	General = "General"
	// ErrorSentinel replaces enrichment fields when a record failed to enrich.
	ErrorSentinel = "Error"
)

// Stage names a persisted pipeline output.
type Stage string

const (
	StageRaw            Stage = "raw"
	StageSummarized     Stage = "summarized"
	StageThreadAnalyzed Stage = "thread_analyzed"
)

// Issue is one tracker issue, progressively enriched by later stages.
type Issue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url"`
	Project     string `json:"project"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Component   string `json:"component"`
	Version     string `json:"version"`
	Created     string `json:"created"`
	Tags        TagSet `json:"taxonomy_tags"`

	WCAGCriterion string `json:"wcag_criterion"`

	ACRNote         string `json:"acr_note,omitempty"`
	DevNote         string `json:"dev_note,omitempty"`
	TitleAssessment string `json:"title_assessment,omitempty"`
	AIWCAGCriterion string `json:"ai_wcag_criterion,omitempty"`

	ThreadTLDR      string `json:"thread_tldr,omitempty"`
	ThreadProblem   string `json:"thread_problem,omitempty"`
	ThreadSentiment string `json:"thread_sentiment,omitempty"`
	ThreadTimeline  string `json:"thread_timeline,omitempty"`
	ThreadLinks     string `json:"thread_links,omitempty"`
}

// Normalize fills absent tracker metadata with Unknown.
func (i *Issue) Normalize() {
	for _, field := range []*string{&i.Status, &i.Priority, &i.Component, &i.Version, &i.Created, &i.WCAGCriterion} {
		if strings.TrimSpace(*field) == "" {
			*field = Unknown
		}
	}
}

// TagSet is an order-preserving, case-insensitively deduplicated list of tags.
type TagSet []string

// tagSeparator joins tags in tabular output.
const tagSeparator = "; "

// Add appends tags not already present and returns the extended set.
func (t TagSet) Add(tags ...string) TagSet {
	seen := make(map[string]struct{}, len(t)+len(tags))
	for _, tag := range t {
		seen[strings.ToLower(tag)] = struct{}{}
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		t = append(t, tag)
	}
	return t
}

// String renders the set for a single tabular cell.
func (t TagSet) String() string {
	return strings.Join(t, tagSeparator)
}

// ParseTagSet reverses String.
func ParseTagSet(raw string) TagSet {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return TagSet(nil).Add(strings.Split(raw, strings.TrimSpace(tagSeparator))...)
}
