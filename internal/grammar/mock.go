package grammar

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// mockChecker flags a handful of common mistakes so the pipeline is usable
// without a LanguageTool server: a few known misspellings and doubled words.
type mockChecker struct{}

func NewMockChecker() Checker {
	return &mockChecker{}
}

var mockMisspellings = map[string]string{
	"teh":        "the",
	"recieve":    "receive",
	"definately": "definitely",
}

func (m *mockChecker) Check(_ context.Context, text string) ([]protocol.GrammarIssue, error) {
	var issues []protocol.GrammarIssue

	// Issue offsets and lengths are character positions, matching what
	// LanguageTool reports.
	offset := 0
	prevWord := ""
	prevStart := -1
	for _, field := range strings.Fields(text) {
		start := strings.Index(text[offset:], field) + offset
		offset = start + len(field)
		charStart := utf8.RuneCountInString(text[:start])

		word := strings.ToLower(strings.Trim(field, ".,!?;:"))
		if fix, ok := mockMisspellings[word]; ok {
			issues = append(issues, protocol.GrammarIssue{
				Offset:       charStart,
				Length:       utf8.RuneCountInString(word),
				Message:      "Possible spelling mistake found.",
				RuleID:       "MORFOLOGIK_RULE_EN_US",
				Category:     protocol.CategoryTypos,
				Replacements: []string{fix},
			})
		}
		if word != "" && word == prevWord {
			issues = append(issues, protocol.GrammarIssue{
				Offset:       prevStart,
				Length:       utf8.RuneCountInString(text[:offset]) - prevStart,
				Message:      "Possible typo: you repeated a word.",
				RuleID:       "ENGLISH_WORD_REPEAT_RULE",
				Category:     protocol.CategoryGrammar,
				Replacements: []string{field},
			})
		}
		prevWord = word
		prevStart = charStart
	}

	return issues, nil
}
