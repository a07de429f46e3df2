package heuristics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maturion/ingest/internal/ingest"
)

func rejected(texts ...string) []ingest.Feedback {
	out := make([]ingest.Feedback, 0, len(texts))
	for _, t := range texts {
		out = append(out, ingest.Feedback{OrganizationID: "org-1", Text: t, Accepted: false})
	}
	return out
}

func TestNGrams(t *testing.T) {
	t.Parallel()

	grams := NGrams("Leverage best practices!")
	require.Contains(t, grams, "leverage best")
	require.Contains(t, grams, "best practices")
	require.Contains(t, grams, "leverage best practices")
	require.Len(t, grams, 3)

	require.Empty(t, NGrams("single"))
	require.Empty(t, NGrams(""))
}

func TestNGramScorer_UnknownPhraseScoresZero(t *testing.T) {
	t.Parallel()

	s := NewNGramScorer(rejected("leverage best practices going forward"))
	require.Zero(t, s.Score("a perfectly novel sentence"))
}

func TestNGramScorer_FrequencyScaling(t *testing.T) {
	t.Parallel()

	// "leverage synergies" appears once: score 1/10.
	s := NewNGramScorer(rejected("we must leverage synergies"))
	require.InDelta(t, 0.1, s.Score("leverage synergies here"), 1e-9)

	// Five occurrences across two entries: 5/10, no consistency bonus yet.
	s = NewNGramScorer(rejected(
		"leverage synergies leverage synergies leverage synergies",
		"leverage synergies and also leverage synergies",
	))
	require.InDelta(t, 0.5, s.Score("leverage synergies"), 1e-9)
}

func TestNGramScorer_CapAndConsistencyBonus(t *testing.T) {
	t.Parallel()

	// The same phrase in many distinct entries: capped at 0.8 plus the 0.1
	// consistency bonus.
	var fb []ingest.Feedback
	for i := 0; i < 12; i++ {
		fb = append(fb, ingest.Feedback{Text: "moving forward we should iterate", Accepted: false})
	}
	s := NewNGramScorer(fb)
	require.InDelta(t, 0.9, s.Score("moving forward"), 1e-9)
}

func TestNGramScorer_IgnoresAcceptedFeedback(t *testing.T) {
	t.Parallel()

	s := NewNGramScorer([]ingest.Feedback{
		{Text: "clear and specific recommendation", Accepted: true},
	})
	require.Zero(t, s.Patterns())
	require.Zero(t, s.Score("clear and specific recommendation"))
}

func TestNGramScorer_CaseAndPunctuationInsensitive(t *testing.T) {
	t.Parallel()

	s := NewNGramScorer(rejected("Going forward, we iterate."))
	require.Greater(t, s.Score("going forward"), 0.0)
	require.Greater(t, s.Score("GOING FORWARD!"), 0.0)
}
