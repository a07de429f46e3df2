// Package heuristics holds the best-practice context cascade and the
// rejection-pattern learner. The learner is a weighted frequency counter, not
// a statistical model; it hides behind ingest.Scorer so a model-backed
// implementation can replace it without touching callers.
package heuristics

import (
	"strings"
	"unicode"

	"github.com/maturion/ingest/internal/ingest"
)

const (
	// scoreCap bounds the frequency term of the confidence score.
	scoreCap = 0.8
	// consistencyBonus is added when a phrase recurs across enough distinct
	// feedback entries.
	consistencyBonus = 0.1
	// consistencyThreshold is the distinct-entry count that earns the bonus.
	consistencyThreshold = 3
)

// NGramScorer scores candidate phrases against 2- and 3-word n-grams
// extracted from historical rejected feedback.
type NGramScorer struct {
	freq    map[string]int
	entries map[string]int
}

var _ ingest.Scorer = (*NGramScorer)(nil)

// NewNGramScorer builds a scorer from rejected feedback. Accepted feedback in
// the slice is ignored.
func NewNGramScorer(feedback []ingest.Feedback) *NGramScorer {
	s := &NGramScorer{
		freq:    make(map[string]int),
		entries: make(map[string]int),
	}
	for _, fb := range feedback {
		if fb.Accepted {
			continue
		}
		seen := make(map[string]struct{})
		for _, gram := range NGrams(fb.Text) {
			s.freq[gram]++
			if _, dup := seen[gram]; !dup {
				seen[gram] = struct{}{}
				s.entries[gram]++
			}
		}
	}
	return s
}

// Score implements ingest.Scorer. The confidence is the best match over the
// candidate's n-grams: min(freq/10, 0.8) plus a 0.1 bonus when the phrase
// recurs across at least three distinct feedback entries. Zero means no
// learned pattern matches.
func (s *NGramScorer) Score(candidate string) float64 {
	var best float64
	for _, gram := range NGrams(candidate) {
		freq, ok := s.freq[gram]
		if !ok {
			continue
		}
		score := float64(freq) / 10
		if score > scoreCap {
			score = scoreCap
		}
		if s.entries[gram] >= consistencyThreshold {
			score += consistencyBonus
		}
		if score > best {
			best = score
		}
	}
	return best
}

// Patterns returns the number of distinct learned n-grams.
func (s *NGramScorer) Patterns() int {
	return len(s.freq)
}

// NGrams extracts the 2- and 3-word phrase n-grams of text, lowercased with
// punctuation stripped.
func NGrams(text string) []string {
	words := tokenize(text)
	var grams []string
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(words); i++ {
			grams = append(grams, strings.Join(words[i:i+n], " "))
		}
	}
	return grams
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(cleaned)
}
