package grammar

import (
	"fmt"
	"sort"

	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// Correct applies the first suggested replacement of every issue that has
// one. Replacements are applied right to left so earlier offsets stay valid.
// Issues without a suggestion are left in place.
func Correct(text string, issues []protocol.GrammarIssue) string {
	ordered := make([]protocol.GrammarIssue, 0, len(issues))
	for _, issue := range issues {
		if len(issue.Replacements) > 0 {
			ordered = append(ordered, issue)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Offset > ordered[j].Offset })

	for _, issue := range ordered {
		patched, err := applyReplacement(text, issue)
		if err != nil {
			continue
		}
		text = patched
	}
	return text
}

// ApplyIssue applies a single issue's first suggestion.
func ApplyIssue(text string, issue protocol.GrammarIssue) (string, error) {
	if len(issue.Replacements) == 0 {
		return "", fmt.Errorf("issue at offset %d has no suggestion", issue.Offset)
	}
	return applyReplacement(text, issue)
}

// applyReplacement splices by rune index: checker offsets and lengths are
// character positions, not byte positions.
func applyReplacement(text string, issue protocol.GrammarIssue) (string, error) {
	runes := []rune(text)
	if issue.Offset < 0 || issue.Length < 0 || issue.Offset+issue.Length > len(runes) {
		return "", fmt.Errorf("issue span [%d,%d) out of range", issue.Offset, issue.Offset+issue.Length)
	}
	return string(runes[:issue.Offset]) + issue.Replacements[0] + string(runes[issue.Offset+issue.Length:]), nil
}
