package readability

import "testing"

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	return a
}

func TestAnalyzeEmpty(t *testing.T) {
	a := newAnalyzer(t)
	m := a.Analyze("")
	if m.Words != 0 || m.Sentences != 0 || m.FleschReadingEase != 0 {
		t.Fatalf("expected zeroed metrics for empty input, got %+v", m)
	}
	if m.Comment != "" {
		t.Fatalf("expected no comment for empty input, got %q", m.Comment)
	}
}

func TestAnalyzeSimpleText(t *testing.T) {
	a := newAnalyzer(t)
	m := a.Analyze("The cat sat on the mat. The dog ran to the park.")
	if m.Sentences != 2 {
		t.Fatalf("expected 2 sentences, got %d", m.Sentences)
	}
	if m.Words != 12 {
		t.Fatalf("expected 12 words, got %d", m.Words)
	}
	// Short monosyllabic sentences score as very easy reading.
	if m.FleschReadingEase < 90 {
		t.Fatalf("expected high reading ease, got %v", m.FleschReadingEase)
	}
	if m.Comment != "The text is clear and easily understandable." {
		t.Fatalf("unexpected comment: %q", m.Comment)
	}
	if m.Recommendations != "Your writing style is effective." {
		t.Fatalf("unexpected recommendations: %q", m.Recommendations)
	}
}

func TestAnalyzeComplexText(t *testing.T) {
	a := newAnalyzer(t)
	text := "Notwithstanding the considerable organizational complexities inherent in multidisciplinary collaborative initiatives, participating institutions persistently demonstrated extraordinary administrative perseverance throughout exceptionally complicated international negotiations."
	m := a.Analyze(text)
	if m.FleschReadingEase > 40 {
		t.Fatalf("expected low reading ease, got %v", m.FleschReadingEase)
	}
	if m.Comment != "The text is hard to read; consider revising for improved clarity and tone." {
		t.Fatalf("unexpected comment: %q", m.Comment)
	}
	if m.Recommendations == "Your writing style is effective." {
		t.Fatal("expected concrete recommendations for complex text")
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := newAnalyzer(t)
	text := "This is a sentence. Here comes another, somewhat longer, sentence."
	first := a.Analyze(text)
	second := a.Analyze(text)
	if first != second {
		t.Fatalf("metrics not deterministic: %+v vs %+v", first, second)
	}
}

func TestCountSyllables(t *testing.T) {
	cases := map[string]int{
		"cat":      1,
		"hello":    2,
		"syllable": 3,
		"the":      1,
		"a":        1,
	}
	for word, want := range cases {
		if got := countSyllables(word); got != want {
			t.Errorf("countSyllables(%q) = %d, want %d", word, got, want)
		}
	}
}
