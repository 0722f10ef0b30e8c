package memory

import "strings"

// Matcher decides which active entries a candidate fact replaces. The
// default path lets the extraction model name superseded ids itself; a
// Matcher is the fallback when the model's structured output cannot be
// parsed.
type Matcher interface {
	// Match returns the ids of active entries the candidate supersedes.
	Match(candidate string, active []*Entry) []string
}

// ExactMatcher matches on case-insensitive text equality. Deliberately
// conservative: a fallback should never supersede an entry the model did
// not clearly restate.
type ExactMatcher struct{}

func (ExactMatcher) Match(candidate string, active []*Entry) []string {
	var out []string
	for _, e := range active {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(e.Text)) {
			out = append(out, e.ID)
		}
	}
	return out
}
