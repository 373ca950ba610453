// Package sections parses AI answers laid out as "SECTION_NAME: content" lines.
//
// The scan is a small state machine whose states are the declared section
// names plus "none". A line starting with a known prefix opens its section
// (closing the previous one); any other line is appended to the open section.
// Prefixes match case-sensitively; only an answer with no exact prefix at
// all is scanned again with case folded. If no prefix ever matches, the whole
// answer lands in the fallback section.
package sections

import (
	"strings"
)

// Section declares one expected prefix and its accepted aliases.
type Section struct {
	Name    string
	Aliases []string
}

// Layout is the ordered set of sections a stage expects.
type Layout struct {
	Sections []Section
	Fallback string
}

// Result maps section names to their collected content.
type Result map[string]string

// Get returns the content of a section or def when the section is missing or empty.
func (r Result) Get(name, def string) string {
	if v := strings.TrimSpace(r[name]); v != "" {
		return v
	}
	return def
}

// Parse runs the line scanner over text.
func (l Layout) Parse(text string) Result {
	result := Result{}
	var (
		current string
		buffer  []string
		matched bool
	)

	flush := func() {
		if current == "" {
			return
		}
		result[current] = strings.TrimSpace(strings.Join(buffer, "\n"))
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	fold := !l.anyExact(lines)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if name, rest, ok := l.match(line, fold); ok {
			flush()
			matched = true
			current = name
			buffer = buffer[:0]
			if rest != "" {
				buffer = append(buffer, rest)
			}
			continue
		}
		if line == "" || current == "" {
			continue
		}
		buffer = append(buffer, line)
	}
	flush()

	if !matched && l.Fallback != "" {
		if whole := strings.TrimSpace(text); whole != "" {
			result[l.Fallback] = whole
		}
	}
	return result
}

func (l Layout) anyExact(lines []string) bool {
	for _, line := range lines {
		if _, _, ok := l.match(strings.TrimSpace(line), false); ok {
			return true
		}
	}
	return false
}

func (l Layout) match(line string, fold bool) (string, string, bool) {
	candidate := strings.TrimLeft(line, "*#>-_ \t")
	for _, sec := range l.Sections {
		for _, prefix := range append([]string{sec.Name}, sec.Aliases...) {
			p := prefix + ":"
			if len(candidate) < len(p) {
				continue
			}
			head := candidate[:len(p)]
			if head != p && !(fold && strings.EqualFold(head, p)) {
				continue
			}
			rest := candidate[len(p):]
			rest = strings.TrimSpace(strings.TrimLeft(rest, "*_ \t"))
			return sec.Name, rest, true
		}
	}
	return "", "", false
}
