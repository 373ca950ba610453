package domain

// Comment is one entry of an issue discussion thread.
type Comment struct {
	// Sequence is 1-based in fetch order, independent of the tracker's numbering.
	Sequence int
	Author   string
	Body     string
	// SourceID is the tracker-native comment identifier used for deep links.
	SourceID string
	Link     string
}

// Thread is the discussion attached to an issue.
type Thread struct {
	Reporter  string
	Followers string
	Files     []string
	Comments  []Comment
}

// Participants counts distinct comment authors.
func (t *Thread) Participants() int {
	if t == nil {
		return 0
	}
	seen := map[string]struct{}{}
	for _, c := range t.Comments {
		if c.Author == "" || c.Author == Unknown {
			continue
		}
		seen[c.Author] = struct{}{}
	}
	return len(seen)
}
