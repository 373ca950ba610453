package usecase

import (
	"fmt"
	"strings"
	"text/template"

	"ACRScanner/internal/domain"
)

// promptData is what every stage template renders from.
type promptData struct {
	Issue  domain.Issue
	Thread *domain.Thread
}

// groupData feeds the consolidation template.
type groupData struct {
	Criterion string
	Issues    []domain.Issue
}

var promptFuncs = template.FuncMap{
	"clip": func(limit int, s string) string { return domain.Truncate(s, limit) },
	"join": strings.Join,
	"fallback": func(def, s string) string {
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	},
	"comment": formatComment,
	"note":    groupNote,
}

// formatComment renders "#<seq> <author> (<link>): <body>" with the body cut to 300 runes.
func formatComment(c domain.Comment) string {
	link := c.Link
	if link == "" {
		link = "no link"
	}
	return fmt.Sprintf("#%d %s (%s): %s", c.Sequence, c.Author, link, domain.Truncate(c.Body, 300))
}

// groupNote picks the most informative text an issue carries for consolidation.
func groupNote(issue domain.Issue) string {
	for _, candidate := range []string{issue.ACRNote, issue.ThreadProblem, issue.Title} {
		if candidate != "" && candidate != domain.ErrorSentinel {
			return candidate
		}
	}
	return issue.Title
}

var summarizeTemplate = template.Must(template.New("summarize").Funcs(promptFuncs).Parse(`Analyze this accessibility issue from the {{.Issue.Project}} tracker:
Title: {{.Issue.Title}}
Description: {{clip 4000 .Issue.Description}}
Tags: {{.Issue.Tags}}

Provide 4 specific outputs:
1. ACR_NOTE: A professional note for a compliance report describing the barrier.
2. DEVELOPER_NOTE: Technical guidance for fixing this, noting if patches exist.
3. TITLE_ASSESSMENT: Does the title accurately reflect the issue? (OK/SUGGEST)
4. WCAG_ASSESSMENT: The specific WCAG Success Criterion number ONLY (e.g. '1.1.1'). Do not include the name, level, or reasoning in this line.

Format response strictly as:
ACR_NOTE: ...
DEVELOPER_NOTE: ...
TITLE_ASSESSMENT: ...
WCAG_ASSESSMENT: ...
`))

var threadTemplate = template.Must(template.New("thread").Funcs(promptFuncs).Parse(`Analyze this accessibility issue thread and provide a structured summary.

ISSUE: {{.Issue.Title}}
{{- with .Thread}}
REPORTER: {{fallback "Unknown" .Reporter}}
FOLLOWERS: {{fallback "Unknown" .Followers}}
RECENT FILES/PATCHES: {{join .Files ", "}}

COMMENT THREAD:
{{range .Comments}}{{comment .}}
{{else}}(no comments)
{{end}}
{{- else}}
COMMENT THREAD: unavailable, base the summary on the description only.
{{- end}}

ORIGINAL DESCRIPTION: {{clip 4000 .Issue.Description}}

Only use usernames, comment numbers and links that appear above. Say so plainly when discussion is minimal.

Provide 5 outputs in this EXACT format:
TLDR: A 2-3 sentence executive summary of the issue and its current status.
PROBLEM_STATEMENT: A clear definition of the accessibility barrier, referencing WCAG criteria if applicable.
SENTIMENT: One of "Active collaboration", "Minimal engagement", "Stalled (no recent activity)", "Initial report only".
TIMELINE: One line per entry, "#<number> <user>: <event>", using only comments listed above.
LINKS: Relevant WCAG docs, MDN pages or related issues mentioned in comments, as "- [Title](URL): description". Do not repeat the issue URL.
`))

var consolidateTemplate = template.Must(template.New("consolidate").Funcs(promptFuncs).Parse(`You are writing an OpenACR report for {{if eq .Criterion "General"}}general accessibility issues not mapped to a WCAG success criterion{{else}}WCAG SC {{.Criterion}}{{end}}.
Here are the known open issues:
{{range .Issues}}- {{note .}} (Status: {{.Status}})
{{end}}
1. Determine the conformance level: supports, partially-supports, does-not-support, not-applicable.
2. Write a consolidated remarks paragraph summarizing the barriers.

Format:
LEVEL: <level>
REMARKS: <text>
`))
