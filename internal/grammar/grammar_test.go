package grammar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		ruleID  string
		message string
		want    string
	}{
		{"MORFOLOGIK_RULE_EN_US", "Possible spelling mistake found.", protocol.CategoryTypos},
		{"SOME_RULE", "This spelling is uncommon.", protocol.CategoryTypos},
		{"COMMA_RULE", "Missing punctuation before conjunction.", protocol.CategoryPunctuation},
		{"WORDINESS", "This style issue makes the sentence wordy.", protocol.CategoryStyle},
		{"AGREEMENT", "Subject and verb do not agree.", protocol.CategoryGrammar},
	}
	for _, tc := range cases {
		if got := Classify(tc.ruleID, tc.message); got != tc.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", tc.ruleID, tc.message, got, tc.want)
		}
	}
}

func TestLanguageToolChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("language") != "en-US" {
			t.Errorf("unexpected language %q", r.Form.Get("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matches":[
			{"message":"Possible spelling mistake found.","offset":10,"length":3,
			 "replacements":[{"value":"the"}],
			 "context":{"text":"this is teh test"},
			 "rule":{"id":"MORFOLOGIK_RULE_EN_US","issueType":"misspelling"}},
			{"message":"Consider a comma here.","offset":0,"length":4,
			 "replacements":[],
			 "context":{"text":"this is teh test"},
			 "rule":{"id":"COMMA_SPLICE","issueType":"grammar"}}
		]}`))
	}))
	defer server.Close()

	checker := NewLanguageToolChecker(config.GrammarConfig{
		Mode: "languagetool", Endpoint: server.URL, Language: "en-US", TimeoutMS: 2000,
	})
	issues, err := checker.Check(context.Background(), "this is teh test")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	// Sorted by offset.
	if issues[0].Offset != 0 || issues[1].Offset != 10 {
		t.Fatalf("issues not ordered by offset: %+v", issues)
	}
	if issues[1].Category != protocol.CategoryTypos {
		t.Fatalf("expected misspelling classified as typo, got %q", issues[1].Category)
	}
	if issues[1].Replacements[0] != "the" {
		t.Fatalf("expected replacement preserved, got %v", issues[1].Replacements)
	}
}

func TestLanguageToolCheckerUnavailable(t *testing.T) {
	checker := NewLanguageToolChecker(config.GrammarConfig{
		Mode: "languagetool", Endpoint: "http://127.0.0.1:1", Language: "en-US", TimeoutMS: 200,
	})
	if _, err := checker.Check(context.Background(), "text"); err == nil {
		t.Fatal("expected error when server unreachable")
	}
}

func TestCorrectAppliesSuggestionsRightToLeft(t *testing.T) {
	text := "teh cat sat on teh mat"
	issues := []protocol.GrammarIssue{
		{Offset: 0, Length: 3, Replacements: []string{"the"}},
		{Offset: 15, Length: 3, Replacements: []string{"the"}},
	}
	got := Correct(text, issues)
	if got != "the cat sat on the mat" {
		t.Fatalf("unexpected correction: %q", got)
	}
}

func TestCorrectUsesCharacterOffsets(t *testing.T) {
	// "café" is 4 characters but 5 bytes; the offsets below are character
	// positions, the way LanguageTool reports them.
	text := "café has teh menu"
	issues := []protocol.GrammarIssue{
		{Offset: 9, Length: 3, Replacements: []string{"the"}},
	}
	if got := Correct(text, issues); got != "café has the menu" {
		t.Fatalf("unexpected correction: %q", got)
	}

	got, err := ApplyIssue("naïve naïve words", protocol.GrammarIssue{
		Offset: 0, Length: 11, Replacements: []string{"naïve"},
	})
	if err != nil {
		t.Fatalf("apply issue: %v", err)
	}
	if got != "naïve words" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestCorrectSkipsIssuesWithoutSuggestions(t *testing.T) {
	text := "strange wording here"
	issues := []protocol.GrammarIssue{{Offset: 0, Length: 7}}
	if got := Correct(text, issues); got != text {
		t.Fatalf("text should be unchanged, got %q", got)
	}
}

func TestApplyIssue(t *testing.T) {
	text := "I recieve mail"
	issue := protocol.GrammarIssue{Offset: 2, Length: 7, Replacements: []string{"receive"}}
	got, err := ApplyIssue(text, issue)
	if err != nil {
		t.Fatalf("apply issue: %v", err)
	}
	if got != "I receive mail" {
		t.Fatalf("unexpected result: %q", got)
	}

	if _, err := ApplyIssue(text, protocol.GrammarIssue{Offset: 100, Length: 5, Replacements: []string{"x"}}); err == nil {
		t.Fatal("expected error for out-of-range span")
	}
}

func TestMockCheckerFlagsKnownMistakes(t *testing.T) {
	checker := NewMockChecker()
	issues, err := checker.Check(context.Background(), "teh dog barked at the the mailman")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %+v", len(issues), issues)
	}
	if issues[0].Category != protocol.CategoryTypos {
		t.Fatalf("expected typo first, got %+v", issues[0])
	}
}

func TestMockCheckerReportsCharacterOffsets(t *testing.T) {
	checker := NewMockChecker()
	text := "café teh menu"
	issues, err := checker.Check(context.Background(), text)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d: %+v", len(issues), issues)
	}
	// "café " is 5 characters even though it is 6 bytes.
	if issues[0].Offset != 5 || issues[0].Length != 3 {
		t.Fatalf("unexpected span [%d,%d)", issues[0].Offset, issues[0].Offset+issues[0].Length)
	}
	if got := Correct(text, issues); got != "café the menu" {
		t.Fatalf("unexpected correction: %q", got)
	}
}
