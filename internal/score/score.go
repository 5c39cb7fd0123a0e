// Package score turns checker issues and readability metrics into a single
// composite score under a user-adjustable weight policy.
package score

import (
	"math"
	"strings"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

const (
	maxCategoryWeight    = 10
	maxReadabilityWeight = 10

	// Readability pivots: Flesch Reading Ease above 60 reads as a bonus,
	// below as a penalty, scaled down by 10.
	readabilityPivot   = 60.0
	readabilityDivisor = 10.0
)

// Summary is the scorer output for one analysis pass.
type Summary struct {
	Composite      float64
	Breakdown      map[string]int
	WordCount      int
	WordsPerMinute float64
	FillerCount    int
	Feedback       string
}

// ClampWeights forces weights into their valid ranges. Category weights live
// in [0, 10]; the readability weight may be negative, in [-10, 10]. NaN
// collapses to zero.
func ClampWeights(w protocol.Weights) protocol.Weights {
	return protocol.Weights{
		Grammar:     clamp(w.Grammar, 0, maxCategoryWeight),
		Typos:       clamp(w.Typos, 0, maxCategoryWeight),
		Punctuation: clamp(w.Punctuation, 0, maxCategoryWeight),
		Style:       clamp(w.Style, 0, maxCategoryWeight),
		Readability: clamp(w.Readability, -maxReadabilityWeight, maxReadabilityWeight),
	}
}

// WeightsFromConfig builds the default weight policy, clamped.
func WeightsFromConfig(cfg config.ScoringConfig) protocol.Weights {
	return ClampWeights(protocol.Weights{
		Grammar:     cfg.WeightGrammar,
		Typos:       cfg.WeightTypos,
		Punctuation: cfg.WeightPunctuation,
		Style:       cfg.WeightStyle,
		Readability: cfg.WeightReadability,
	})
}

// Compute derives the composite score and session metrics. It is a pure
// function of its inputs: same transcript, issues, metrics, and weights
// always yield the same summary.
func Compute(transcript string, durationSeconds float64, issues []protocol.GrammarIssue, metrics protocol.ReadabilityMetrics, weights protocol.Weights, fillerWords []string) Summary {
	weights = ClampWeights(weights)

	breakdown := map[string]int{
		protocol.CategoryGrammar:     0,
		protocol.CategoryTypos:       0,
		protocol.CategoryPunctuation: 0,
		protocol.CategoryStyle:       0,
	}
	for _, issue := range issues {
		if _, ok := breakdown[issue.Category]; ok {
			breakdown[issue.Category]++
		} else {
			breakdown[protocol.CategoryGrammar]++
		}
	}

	penalty := weights.Grammar*float64(breakdown[protocol.CategoryGrammar]) +
		weights.Typos*float64(breakdown[protocol.CategoryTypos]) +
		weights.Punctuation*float64(breakdown[protocol.CategoryPunctuation]) +
		weights.Style*float64(breakdown[protocol.CategoryStyle])

	// Readability only moves the score when there is text to measure.
	var adjustment float64
	if metrics.Words > 0 {
		adjustment = weights.Readability * (metrics.FleschReadingEase - readabilityPivot) / readabilityDivisor
	}

	composite := clamp(100-penalty+adjustment, 0, 100)

	words := strings.Fields(transcript)
	wordCount := len(words)
	var wpm float64
	if durationSeconds > 0 {
		wpm = math.Round(float64(wordCount)/(durationSeconds/60)*100) / 100
	}

	return Summary{
		Composite:      composite,
		Breakdown:      breakdown,
		WordCount:      wordCount,
		WordsPerMinute: wpm,
		FillerCount:    countFillers(transcript, fillerWords),
		Feedback:       feedback(breakdown),
	}
}

func countFillers(transcript string, fillerWords []string) int {
	lower := strings.ToLower(transcript)
	total := 0
	for _, filler := range fillerWords {
		if filler == "" {
			continue
		}
		total += strings.Count(lower, filler)
	}
	return total
}

func feedback(breakdown map[string]int) string {
	var lines []string
	if breakdown[protocol.CategoryTypos] > 0 {
		lines = append(lines, "Review suggested corrections for typos and consider using a spell-checker.")
	}
	if breakdown[protocol.CategoryGrammar] > 0 {
		lines = append(lines, "Review grammar suggestions and study common grammatical patterns.")
	}
	if breakdown[protocol.CategoryPunctuation] > 0 {
		lines = append(lines, "Review punctuation guidelines to improve sentence clarity.")
	}
	if breakdown[protocol.CategoryStyle] > 0 {
		lines = append(lines, "Consider revising stylistically ambiguous sentences for better readability.")
	}
	if len(lines) == 0 {
		return "No additional contextual feedback available."
	}
	return strings.Join(lines, " ")
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
