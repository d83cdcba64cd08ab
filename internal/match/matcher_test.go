package match_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/medivox/internal/catalog"
	"github.com/MrWong99/medivox/internal/match"
)

// testIndex builds an index from the given names, one variant each.
func testIndex(t *testing.T, names ...string) *catalog.Index {
	t.Helper()
	entries := make([]catalog.Entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, catalog.Entry{Name: n, Variants: []string{n + " 500mg Tablet"}})
	}
	idx, err := catalog.NewIndex(entries)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return idx
}

func TestMatch_MisrecognizedNameAutoAccepts(t *testing.T) {
	t.Parallel()
	idx := testIndex(t, "Paracetamol", "Ibuprofen", "Amoxicillin", "Cetirizine")
	m := match.New()

	// "paracetamal" is one substitution away from "paracetamol".
	result := m.Match("Paracetamal", idx)
	if len(result.Candidates) == 0 {
		t.Fatal("expected candidates, got none")
	}
	if got := result.Candidates[0].Entry.Name; got != "Paracetamol" {
		t.Fatalf("top candidate = %q, want Paracetamol", got)
	}
	if !result.AutoAccepted {
		t.Errorf("expected auto-accept at score %.1f with threshold %.1f",
			result.Candidates[0].Score, m.Threshold())
	}
	accepted, ok := result.Accepted()
	if !ok || accepted.Entry.Name != "Paracetamol" {
		t.Errorf("Accepted() = (%v, %v), want Paracetamol entry", accepted.Entry.Name, ok)
	}
}

func TestMatch_GibberishIsNotAccepted(t *testing.T) {
	t.Parallel()
	idx := testIndex(t, "Paracetamol", "Ibuprofen", "Amoxicillin")
	m := match.New()

	result := m.Match("qwxzkvvv", idx)
	if result.AutoAccepted {
		t.Fatalf("gibberish auto-accepted with top score %.1f", result.Candidates[0].Score)
	}
	if _, ok := result.Accepted(); ok {
		t.Error("Accepted() reported a winner for a non-accepted result")
	}
	// Matching is total: a result is still produced.
	if len(result.Candidates) == 0 {
		t.Error("expected ranked candidates even for a poor query")
	}
}

func TestMatch_EmptyQueryAndEmptyCatalog(t *testing.T) {
	t.Parallel()
	m := match.New()
	idx := testIndex(t, "Paracetamol")

	for _, q := range []string{"", "   ", "?!."} {
		result := m.Match(q, idx)
		if len(result.Candidates) != 0 || result.AutoAccepted {
			t.Errorf("query %q: expected empty non-accepting result, got %+v", q, result)
		}
	}

	empty, err := catalog.NewIndex(nil)
	if err != nil {
		t.Fatalf("empty index: %v", err)
	}
	result := m.Match("paracetamol", empty)
	if len(result.Candidates) != 0 || result.AutoAccepted {
		t.Errorf("empty catalog: expected empty non-accepting result, got %+v", result)
	}
}

func TestMatch_CandidatesSortedAndCapped(t *testing.T) {
	t.Parallel()
	idx := testIndex(t, "Paracetamol", "Ibuprofen", "Amoxicillin", "Cetirizine",
		"Loratadine", "Omeprazole", "Metformin")

	m := match.New()
	result := m.Match("paracetamol", idx)
	if len(result.Candidates) != match.DefaultTopK {
		t.Fatalf("got %d candidates, want %d", len(result.Candidates), match.DefaultTopK)
	}
	for i := 1; i < len(result.Candidates); i++ {
		if result.Candidates[i].Score > result.Candidates[i-1].Score {
			t.Errorf("candidates not sorted: [%d]=%.1f > [%d]=%.1f",
				i, result.Candidates[i].Score, i-1, result.Candidates[i-1].Score)
		}
	}

	small := match.New(match.WithTopK(2))
	if got := len(small.Match("paracetamol", idx).Candidates); got != 2 {
		t.Errorf("WithTopK(2): got %d candidates", got)
	}
}

// constantScorer gives every pair the same score, so ranking falls back
// entirely to the stable tie-break.
type constantScorer struct{ score float64 }

func (c constantScorer) Score(_, _ string) float64 { return c.score }
func (constantScorer) Name() string                { return "constant" }

func TestMatch_EqualScoresKeepCatalogOrder(t *testing.T) {
	t.Parallel()
	idx := testIndex(t, "Zyrtec", "Amoxicillin", "Paracetamol")
	m := match.New(match.WithScorer(constantScorer{score: 80}))

	result := m.Match("anything", idx)
	want := []string{"Zyrtec", "Amoxicillin", "Paracetamol"}
	if len(result.Candidates) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(result.Candidates), len(want))
	}
	for i, name := range want {
		if result.Candidates[i].Entry.Name != name {
			t.Errorf("candidates[%d] = %q, want %q (catalog order)", i, result.Candidates[i].Entry.Name, name)
		}
	}
	if !result.AutoAccepted {
		t.Error("score 80 at default threshold 78 should auto-accept")
	}
	if got, _ := result.Accepted(); got.Entry.Name != "Zyrtec" {
		t.Errorf("tie at threshold accepted %q, want first catalog entry Zyrtec", got.Entry.Name)
	}
}

func TestMatch_ThresholdBoundary(t *testing.T) {
	t.Parallel()
	idx := testIndex(t, "Paracetamol")

	// Exactly at threshold accepts.
	at := match.New(match.WithScorer(constantScorer{score: 78}))
	if !at.Match("x", idx).AutoAccepted {
		t.Error("score exactly at threshold should auto-accept")
	}

	// Just below does not.
	below := match.New(match.WithScorer(constantScorer{score: 77.9}))
	if below.Match("x", idx).AutoAccepted {
		t.Error("score below threshold should not auto-accept")
	}

	// A stricter threshold rejects what the default accepts.
	strict := match.New(match.WithThreshold(99))
	result := strict.Match("paracetamal", idx)
	if result.AutoAccepted {
		t.Errorf("threshold 99 accepted score %.1f", result.Candidates[0].Score)
	}
}

func TestEditDistanceScorer(t *testing.T) {
	t.Parallel()
	s := match.EditDistanceScorer{}

	if got := s.Score("paracetamol", "paracetamol"); got != 100 {
		t.Errorf("identical strings: score %.1f, want 100", got)
	}
	if got := s.Score("", "paracetamol"); got != 0 {
		t.Errorf("empty query: score %.1f, want 0", got)
	}
	// Word order must not matter thanks to the token-sorted view.
	reordered := s.Score("500 paracetamol", "paracetamol 500")
	if reordered != 100 {
		t.Errorf("token-reordered strings: score %.1f, want 100", reordered)
	}
	// Closer strings must score higher.
	near := s.Score("paracetamal", "paracetamol")
	far := s.Score("qwxzk", "paracetamol")
	if near <= far {
		t.Errorf("near %.1f should beat far %.1f", near, far)
	}
	if near < 85 {
		t.Errorf("single edit on an 11-rune name scored %.1f, want ≥ 85", near)
	}
}

func TestLCSScorer(t *testing.T) {
	t.Parallel()
	s := match.LCSScorer{}

	if got := s.Score("ibuprofen", "ibuprofen"); got != 100 {
		t.Errorf("identical strings: score %.1f, want 100", got)
	}
	if got := s.Score("ibuprofen", ""); got != 0 {
		t.Errorf("empty name: score %.1f, want 0", got)
	}
	near := s.Score("ibuprofin", "ibuprofen")
	far := s.Score("zzzzz", "ibuprofen")
	if near <= far {
		t.Errorf("near %.1f should beat far %.1f", near, far)
	}

	// Both scorers stay within the 0–100 scale on arbitrary input.
	for _, pair := range [][2]string{{"a", strings.Repeat("b", 50)}, {"co-amoxiclav", "amoxicillin"}} {
		for _, sc := range []match.Scorer{match.EditDistanceScorer{}, match.LCSScorer{}} {
			got := sc.Score(pair[0], pair[1])
			if got < 0 || got > 100 {
				t.Errorf("%s.Score(%q, %q) = %.1f out of [0, 100]", sc.Name(), pair[0], pair[1], got)
			}
		}
	}
}
