package match

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Scorer computes a 0–100 similarity between a normalized query and a
// normalized catalog name. Near-identical strings score near 100, disjoint
// strings near 0, and single-character edits cost only a few points.
//
// Per the capability-strategy design, the scorer is chosen once when the
// matcher is constructed — the primary metric stack normally, the
// dependency-free LCS fallback in degraded mode — never per call.
type Scorer interface {
	// Score compares two already-normalized strings.
	Score(query, name string) float64

	// Name identifies the strategy in logs and metrics.
	Name() string
}

// EditDistanceScorer is the primary [Scorer], built on the matchr string
// metrics. The score is the best of three views of the pair:
//
//   - normalized Levenshtein ratio on the full strings,
//   - the same ratio with tokens sorted, making word order irrelevant
//     ("500mg paracetamol" vs "paracetamol 500mg"),
//   - Jaro-Winkler, which rewards shared prefixes and is forgiving of
//     trailing noise words picked up by the transcriber.
type EditDistanceScorer struct{}

// Compile-time interface assertion.
var _ Scorer = EditDistanceScorer{}

// Name implements [Scorer].
func (EditDistanceScorer) Name() string { return "edit-distance" }

// Score implements [Scorer].
func (EditDistanceScorer) Score(query, name string) float64 {
	if query == "" || name == "" {
		return 0
	}
	if query == name {
		return 100
	}

	best := levenshteinRatio(query, name)
	if s := levenshteinRatio(sortTokens(query), sortTokens(name)); s > best {
		best = s
	}
	if s := matchr.JaroWinkler(query, name, false) * 100; s > best {
		best = s
	}
	return best
}

// levenshteinRatio converts edit distance into a 0–100 similarity:
// 100 × (1 − distance ⁄ longer length).
func levenshteinRatio(a, b string) float64 {
	longer := max(len([]rune(a)), len([]rune(b)))
	if longer == 0 {
		return 100
	}
	d := matchr.Levenshtein(a, b)
	return 100 * (1 - float64(d)/float64(longer))
}

// sortTokens rebuilds s with its whitespace-separated tokens in sorted
// order.
func sortTokens(s string) string {
	tokens := strings.Fields(s)
	if len(tokens) < 2 {
		return s
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// LCSScorer is the degraded-mode [Scorer]: a longest-common-subsequence
// ratio with no third-party dependency. Precision is lower than the primary
// scorer — transpositions cost double — but it never fails and keeps the
// matcher total when the metric stack is unavailable.
type LCSScorer struct{}

// Compile-time interface assertion.
var _ Scorer = LCSScorer{}

// Name implements [Scorer].
func (LCSScorer) Name() string { return "lcs" }

// Score implements [Scorer]. The ratio is 100 × 2·LCS(a,b) ⁄ (len(a)+len(b)),
// computed on the better of the raw and token-sorted forms.
func (LCSScorer) Score(query, name string) float64 {
	if query == "" || name == "" {
		return 0
	}
	best := lcsRatio(query, name)
	if s := lcsRatio(sortTokens(query), sortTokens(name)); s > best {
		best = s
	}
	return best
}

func lcsRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 100
	}
	return 100 * 2 * float64(lcsLength(ra, rb)) / float64(len(ra)+len(rb))
}

// lcsLength computes the longest-common-subsequence length with a rolling
// single-row table.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0 // row[j-1] from the previous iteration (diagonal)
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prev + 1
			} else if row[j-1] > row[j] {
				row[j] = row[j-1]
			}
			prev = cur
		}
	}
	return row[len(b)]
}
