package grammar

import (
	"context"
	"fmt"
	"strings"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// Checker abstracts grammar/style checking backends.
type Checker interface {
	Check(ctx context.Context, text string) ([]protocol.GrammarIssue, error)
}

// NewChecker builds the configured checker backend.
func NewChecker(cfg config.GrammarConfig) (Checker, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockChecker(), nil
	case "languagetool":
		return NewLanguageToolChecker(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported grammar mode %q", cfg.Mode)
	}
}

// Classify maps a checker match onto one of the four issue categories. The
// rules mirror LanguageTool conventions: the US spelling rule and anything
// mentioning spelling are typos, then punctuation, then style/readability,
// and everything else is grammar.
func Classify(ruleID, message string) string {
	lower := strings.ToLower(message)
	switch {
	case ruleID == "MORFOLOGIK_RULE_EN_US" || strings.Contains(lower, "spelling"):
		return protocol.CategoryTypos
	case strings.Contains(lower, "punctuation"):
		return protocol.CategoryPunctuation
	case strings.Contains(lower, "style") || strings.Contains(lower, "readability"):
		return protocol.CategoryStyle
	default:
		return protocol.CategoryGrammar
	}
}
