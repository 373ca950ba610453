package domain

import "strings"

// ConformanceLevel is the per-criterion OpenACR adherence level.
type ConformanceLevel string

const (
	LevelSupports          ConformanceLevel = "supports"
	LevelPartiallySupports ConformanceLevel = "partially-supports"
	LevelDoesNotSupport    ConformanceLevel = "does-not-support"
	LevelNotApplicable     ConformanceLevel = "not-applicable"
	LevelNotEvaluated      ConformanceLevel = "not-evaluated"
)

// ParseConformanceLevel maps a free-text answer onto a known level.
func ParseConformanceLevel(value string) (ConformanceLevel, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.Trim(normalized, "'\"`*.")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	switch ConformanceLevel(normalized) {
	case LevelSupports, LevelPartiallySupports, LevelDoesNotSupport, LevelNotApplicable, LevelNotEvaluated:
		return ConformanceLevel(normalized), true
	}
	return "", false
}

// MaxRemarksLength bounds Judgment.Remarks.
const MaxRemarksLength = 2000

// Judgment is the consolidated conformance assessment for one criterion.
type Judgment struct {
	CriterionID string           `json:"criterion_id"`
	Level       ConformanceLevel `json:"conformance_level"`
	Remarks     string           `json:"remarks"`
	IssueCount  int              `json:"issue_count"`
}

// Generation is the uniform result of a text-generation call.
type Generation struct {
	Text string
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
