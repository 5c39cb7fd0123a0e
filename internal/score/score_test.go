package score

import (
	"math"
	"testing"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

var fillers = []string{"um", "uh", "like", "you know", "ah", "er"}

func issues(counts map[string]int) []protocol.GrammarIssue {
	var out []protocol.GrammarIssue
	for category, n := range counts {
		for i := 0; i < n; i++ {
			out = append(out, protocol.GrammarIssue{Category: category})
		}
	}
	return out
}

func TestComputeDeterministic(t *testing.T) {
	in := issues(map[string]int{protocol.CategoryGrammar: 2, protocol.CategoryTypos: 1})
	metrics := protocol.ReadabilityMetrics{FleschReadingEase: 70, Words: 40}
	weights := WeightsFromConfig(config.Default().Scoring)

	first := Compute("some transcript text", 30, in, metrics, weights, fillers)
	second := Compute("some transcript text", 30, in, metrics, weights, fillers)
	if first.Composite != second.Composite {
		t.Fatalf("composite not deterministic: %v vs %v", first.Composite, second.Composite)
	}
	// 100 - (3*2 + 2*1) with zero readability weight.
	if first.Composite != 92 {
		t.Fatalf("expected composite 92, got %v", first.Composite)
	}
}

func TestRaisingWeightNeverRaisesScore(t *testing.T) {
	in := issues(map[string]int{protocol.CategoryStyle: 3})
	metrics := protocol.ReadabilityMetrics{FleschReadingEase: 50, Words: 25}

	base := protocol.Weights{Grammar: 3, Typos: 2, Punctuation: 1, Style: 1.5}
	for w := 0.0; w <= 10; w += 0.5 {
		heavier := base
		heavier.Style = w
		got := Compute("text", 10, in, metrics, heavier, fillers).Composite
		lighter := base
		lighter.Style = w / 2
		ref := Compute("text", 10, in, metrics, lighter, fillers).Composite
		if got > ref {
			t.Fatalf("style weight %v produced higher score (%v) than weight %v (%v)", w, got, w/2, ref)
		}
	}
}

func TestEmptyTranscript(t *testing.T) {
	weights := protocol.Weights{Grammar: 3, Typos: 2, Punctuation: 1, Style: 1.5, Readability: 5}
	got := Compute("", 0, nil, protocol.ReadabilityMetrics{}, weights, fillers)
	if got.Composite != 100 {
		t.Fatalf("empty transcript should score 100, got %v", got.Composite)
	}
	if got.WordCount != 0 || got.FillerCount != 0 || got.WordsPerMinute != 0 {
		t.Fatalf("expected zeroed metrics, got %+v", got)
	}
	if got.Feedback != "No additional contextual feedback available." {
		t.Fatalf("unexpected feedback: %q", got.Feedback)
	}
}

func TestClampWeights(t *testing.T) {
	clamped := ClampWeights(protocol.Weights{
		Grammar:     -4,
		Typos:       42,
		Punctuation: math.NaN(),
		Style:       2,
		Readability: -99,
	})
	if clamped.Grammar != 0 {
		t.Fatalf("negative weight should clamp to 0, got %v", clamped.Grammar)
	}
	if clamped.Typos != 10 {
		t.Fatalf("oversized weight should clamp to 10, got %v", clamped.Typos)
	}
	if clamped.Punctuation != 0 {
		t.Fatalf("NaN weight should collapse to 0, got %v", clamped.Punctuation)
	}
	if clamped.Readability != -10 {
		t.Fatalf("readability weight should clamp to -10, got %v", clamped.Readability)
	}
}

func TestReadabilityAdjustment(t *testing.T) {
	weights := protocol.Weights{Readability: 5}
	easy := protocol.ReadabilityMetrics{FleschReadingEase: 80, Words: 30}
	hard := protocol.ReadabilityMetrics{FleschReadingEase: 20, Words: 30}

	easyScore := Compute("text", 10, nil, easy, weights, fillers).Composite
	hardScore := Compute("text", 10, nil, hard, weights, fillers).Composite
	if easyScore <= hardScore {
		t.Fatalf("easier text should score higher: easy=%v hard=%v", easyScore, hardScore)
	}
	if easyScore != 100 {
		// 100 + 5*(80-60)/10 clamps at 100.
		t.Fatalf("expected clamp at 100, got %v", easyScore)
	}
}

func TestFillerAndWPM(t *testing.T) {
	got := Compute("um so I was like you know going", 30, nil, protocol.ReadabilityMetrics{Words: 8}, protocol.Weights{}, fillers)
	if got.FillerCount != 3 {
		t.Fatalf("expected 3 fillers, got %d", got.FillerCount)
	}
	if got.WordCount != 8 {
		t.Fatalf("expected 8 words, got %d", got.WordCount)
	}
	if got.WordsPerMinute != 16 {
		t.Fatalf("expected 16 wpm, got %v", got.WordsPerMinute)
	}
}
