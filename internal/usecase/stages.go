package usecase

import (
	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
	"ACRScanner/internal/sections"
)

// Section names expected from the summarize answer.
const (
	SectionACRNote         = "ACR_NOTE"
	SectionDeveloperNote   = "DEVELOPER_NOTE"
	SectionTitleAssessment = "TITLE_ASSESSMENT"
	SectionWCAGAssessment  = "WCAG_ASSESSMENT"
)

// Section names expected from the analyze-thread answer.
const (
	SectionTLDR      = "TLDR"
	SectionProblem   = "PROBLEM_STATEMENT"
	SectionSentiment = "SENTIMENT"
	SectionTimeline  = "TIMELINE"
	SectionLinks     = "LINKS"
)

// Section names expected from the consolidation answer.
const (
	SectionLevel   = "LEVEL"
	SectionRemarks = "REMARKS"
)

var summaryLayout = sections.Layout{
	Sections: []sections.Section{
		{Name: SectionACRNote},
		{Name: SectionDeveloperNote, Aliases: []string{"DEV_NOTE"}},
		{Name: SectionTitleAssessment},
		{Name: SectionWCAGAssessment, Aliases: []string{"WCAG"}},
	},
	Fallback: SectionACRNote,
}

var threadLayout = sections.Layout{
	Sections: []sections.Section{
		{Name: SectionTLDR},
		{Name: SectionProblem},
		{Name: SectionSentiment},
		{Name: SectionTimeline},
		{Name: SectionLinks},
	},
	Fallback: SectionTLDR,
}

var judgmentLayout = sections.Layout{
	Sections: []sections.Section{
		{Name: SectionLevel, Aliases: []string{"CONFORMANCE_LEVEL"}},
		{Name: SectionRemarks},
	},
	Fallback: SectionRemarks,
}

// SummarizeStage turns raw records into compliance notes and a WCAG mapping.
func SummarizeStage() Stage {
	return Stage{
		Name:   "summarize",
		Input:  domain.StageRaw,
		Output: domain.StageSummarized,
		Prompt: summarizeTemplate,
		Layout: summaryLayout,
		Apply:  applySummary,
		Fail: func(issue *domain.Issue) {
			issue.ACRNote = domain.ErrorSentinel
			issue.DevNote = domain.ErrorSentinel
			issue.TitleAssessment = domain.ErrorSentinel
			issue.AIWCAGCriterion = domain.ErrorSentinel
		},
	}
}

// applySummary keeps a specific connector criterion; otherwise the AI's
// triple is used, and Unknown when neither is usable.
func applySummary(issue *domain.Issue, parsed sections.Result) {
	issue.ACRNote = parsed.Get(SectionACRNote, "")
	issue.DevNote = parsed.Get(SectionDeveloperNote, "")
	issue.TitleAssessment = parsed.Get(SectionTitleAssessment, domain.Unknown)
	issue.AIWCAGCriterion = domain.NormalizeCriterion(parsed.Get(SectionWCAGAssessment, domain.Unknown))

	if !domain.IsCriterion(issue.WCAGCriterion) {
		issue.WCAGCriterion = issue.AIWCAGCriterion
	}
}

// AnalyzeThreadStage summarizes each issue's discussion fetched through threads.
func AnalyzeThreadStage(threads ports.ThreadFetcher) Stage {
	return Stage{
		Name:   "analyze-thread",
		Input:  domain.StageSummarized,
		Output: domain.StageThreadAnalyzed,
		Prompt: threadTemplate,
		Layout: threadLayout,
		Thread: threads,
		Apply: func(issue *domain.Issue, parsed sections.Result) {
			issue.ThreadTLDR = parsed.Get(SectionTLDR, "")
			issue.ThreadProblem = parsed.Get(SectionProblem, "")
			issue.ThreadSentiment = parsed.Get(SectionSentiment, "")
			issue.ThreadTimeline = parsed.Get(SectionTimeline, "")
			issue.ThreadLinks = parsed.Get(SectionLinks, "")
		},
		Fail: func(issue *domain.Issue) {
			issue.ThreadTLDR = domain.ErrorSentinel
			issue.ThreadProblem = domain.ErrorSentinel
			issue.ThreadSentiment = domain.ErrorSentinel
			issue.ThreadTimeline = domain.ErrorSentinel
			issue.ThreadLinks = domain.ErrorSentinel
		},
	}
}
