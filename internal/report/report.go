// Package report formats an analysis into the plain-text session report and
// writes exports.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// Render produces the user-facing report text.
func Render(r protocol.AnalysisReport) string {
	var b strings.Builder

	b.WriteString("Grammar Analysis Report\n")
	b.WriteString("--------------------------\n")
	fmt.Fprintf(&b, "Overall Score: %.1f/100\n", r.CompositeScore)
	fmt.Fprintf(&b, "Word Count: %d\n", r.WordCount)
	fmt.Fprintf(&b, "Speaking Rate: %.2f WPM\n", r.WordsPerMinute)
	fmt.Fprintf(&b, "Filler Words: %d\n\n", r.FillerCount)

	b.WriteString("Error Breakdown:\n")
	fmt.Fprintf(&b, "- Grammar: %d\n", r.Breakdown[protocol.CategoryGrammar])
	fmt.Fprintf(&b, "- Spelling: %d\n", r.Breakdown[protocol.CategoryTypos])
	fmt.Fprintf(&b, "- Punctuation: %d\n", r.Breakdown[protocol.CategoryPunctuation])
	fmt.Fprintf(&b, "- Style: %d\n\n", r.Breakdown[protocol.CategoryStyle])

	b.WriteString("Advanced Style Metrics:\n")
	fmt.Fprintf(&b, "- Flesch Reading Ease: %.2f\n", r.Metrics.FleschReadingEase)
	fmt.Fprintf(&b, "- Flesch-Kincaid Grade Level: %.2f\n", r.Metrics.FleschKincaidGrade)
	fmt.Fprintf(&b, "- Gunning Fog Index: %.2f\n", r.Metrics.GunningFog)
	if r.Metrics.Comment != "" {
		fmt.Fprintf(&b, "Style Comment: %s\n", r.Metrics.Comment)
	}
	if r.Metrics.Recommendations != "" {
		fmt.Fprintf(&b, "Recommendations: %s\n", r.Metrics.Recommendations)
	}
	b.WriteString("\n")

	b.WriteString("Contextual Language Feedback:\n")
	b.WriteString(r.Feedback)
	b.WriteString("\n")

	return b.String()
}

// Export writes the report text to path, creating parent directories.
func Export(path, text string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
