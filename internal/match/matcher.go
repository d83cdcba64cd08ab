// Package match turns a noisy transcript into a confidence-ranked list of
// catalog candidates.
//
// The matcher scores the normalized query against every catalog entry's
// normalized name, keeps the top candidates in descending score order with
// catalog order as the stable tie-break, and auto-accepts the leader when
// its score clears the configured threshold. Matching is total: it never
// fails, and an empty query or empty catalog simply produces an empty,
// non-accepting result.
package match

import (
	"sort"

	"github.com/MrWong99/medivox/internal/catalog"
)

const (
	// DefaultThreshold is the auto-accept score boundary.
	DefaultThreshold = 78.0

	// DefaultTopK is the maximum number of ranked candidates returned.
	DefaultTopK = 5
)

// Candidate pairs a catalog entry with its similarity score. Candidates are
// created fresh per match call and reference (not own) their index entry.
type Candidate struct {
	Entry catalog.Entry
	Score float64
}

// Result is the ranked outcome of one match call.
type Result struct {
	// Query is the normalized query the scores were computed against.
	Query string

	// Candidates holds up to TopK entries sorted by descending score; equal
	// scores keep catalog order.
	Candidates []Candidate

	// AutoAccepted is true iff the top candidate's score reached the
	// threshold.
	AutoAccepted bool
}

// Accepted returns the auto-accepted candidate — always the first element —
// and whether one exists.
func (r Result) Accepted() (Candidate, bool) {
	if !r.AutoAccepted || len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the auto-accept score boundary in [0, 100].
// Default: 78.0.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// WithTopK sets the maximum number of ranked candidates. Default: 5.
func WithTopK(k int) Option {
	return func(m *Matcher) { m.topK = k }
}

// WithScorer replaces the similarity strategy. Default:
// [EditDistanceScorer].
func WithScorer(s Scorer) Option {
	return func(m *Matcher) { m.scorer = s }
}

// Matcher scores queries against a catalog index. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	scorer    Scorer
	threshold float64
	topK      int
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		scorer:    EditDistanceScorer{},
		threshold: DefaultThreshold,
		topK:      DefaultTopK,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the configured auto-accept boundary.
func (m *Matcher) Threshold() float64 { return m.threshold }

// ScorerName returns the name of the active similarity strategy.
func (m *Matcher) ScorerName() string { return m.scorer.Name() }

// Match normalizes query and ranks every entry of idx against it.
//
// A query that normalizes to empty returns an empty, non-accepting Result
// rather than matching everything. idx may be empty; the result is then
// empty and non-accepting as well.
func (m *Matcher) Match(query string, idx *catalog.Index) Result {
	normalized := Normalize(query)
	result := Result{Query: normalized}
	if normalized == "" || idx.Len() == 0 {
		return result
	}

	entries := idx.Entries()
	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, Candidate{
			Entry: e,
			Score: m.scorer.Score(normalized, e.NormalizedName),
		})
	}

	// Stable sort keeps catalog order for equal scores, which also fixes the
	// accept winner when several candidates tie exactly at the threshold.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > m.topK {
		candidates = candidates[:m.topK]
	}
	result.Candidates = candidates
	result.AutoAccepted = len(candidates) > 0 && candidates[0].Score >= m.threshold
	return result
}
