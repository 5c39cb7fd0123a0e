// Package readability computes the style metrics for a transcript: Flesch
// Reading Ease, Flesch-Kincaid Grade, and Gunning Fog, plus the derived
// comment and recommendations.
package readability

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// Analyzer segments text into sentences and scores it. Safe for concurrent
// use; the tokenizer is read-only after construction.
type Analyzer struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

func NewAnalyzer() (*Analyzer, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("build sentence tokenizer: %w", err)
	}
	return &Analyzer{tokenizer: tokenizer}, nil
}

// Analyze scores the given text. Empty or whitespace-only input yields
// zeroed metrics and no comment.
func (a *Analyzer) Analyze(text string) protocol.ReadabilityMetrics {
	words := fieldWords(text)
	if len(words) == 0 {
		return protocol.ReadabilityMetrics{}
	}

	sentenceCount := len(a.tokenizer.Tokenize(text))
	if sentenceCount == 0 {
		sentenceCount = 1
	}

	var syllableTotal, complexWords int
	for _, word := range words {
		s := countSyllables(word)
		syllableTotal += s
		if s >= 3 {
			complexWords++
		}
	}

	wordCount := float64(len(words))
	wordsPerSentence := wordCount / float64(sentenceCount)
	syllablesPerWord := float64(syllableTotal) / wordCount

	fre := 206.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord
	fkGrade := 0.39*wordsPerSentence + 11.8*syllablesPerWord - 15.59
	fog := 0.4 * (wordsPerSentence + 100*float64(complexWords)/wordCount)

	metrics := protocol.ReadabilityMetrics{
		FleschReadingEase:  fre,
		FleschKincaidGrade: fkGrade,
		GunningFog:         fog,
		Sentences:          sentenceCount,
		Words:              len(words),
		Syllables:          syllableTotal,
	}
	metrics.Comment = comment(fre)
	metrics.Recommendations = recommendations(fkGrade, fog)
	return metrics
}

func comment(fre float64) string {
	switch {
	case fre > 60:
		return "The text is clear and easily understandable."
	case fre > 40:
		return "The text is moderately complex; consider simplifying sentences for clarity."
	default:
		return "The text is hard to read; consider revising for improved clarity and tone."
	}
}

func recommendations(fkGrade, fog float64) string {
	var suggestions []string
	if fkGrade > 10 {
		suggestions = append(suggestions, "Simplify sentence structure to lower the reading grade level.")
	}
	if fog > 12 {
		suggestions = append(suggestions, "Reduce vocabulary complexity to lower the Gunning Fog Index.")
	}
	if len(suggestions) == 0 {
		return "Your writing style is effective."
	}
	return strings.Join(suggestions, " ")
}

// fieldWords keeps only tokens that contain at least one letter, stripping
// surrounding punctuation.
func fieldWords(text string) []string {
	var words []string
	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word == "" {
			continue
		}
		hasLetter := false
		for _, r := range word {
			if unicode.IsLetter(r) {
				hasLetter = true
				break
			}
		}
		if hasLetter {
			words = append(words, word)
		}
	}
	return words
}

// countSyllables estimates syllables by counting vowel groups, dropping a
// trailing silent e. Every word counts at least one.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
