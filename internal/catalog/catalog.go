// Package catalog provides the immutable in-memory index of medicine names
// and their variants, built from an external JSON mapping.
//
// An [Index] is constructed once per catalog load and never mutated; reloads
// build a complete new index and swap it in atomically via [Handle], so
// in-flight matches always observe one consistent catalog. Entry order is
// the insertion order of the source mapping, which also serves as the stable
// tie-break order for fuzzy-match ranking.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrCorruptCatalog is the sentinel wrapped by all catalog shape errors:
// input that is not a string → non-empty string list mapping, empty names or
// variants, and names that collide after case-folding. The consuming layer
// presents it as a user-visible error; a failed reload keeps the previous
// good index.
var ErrCorruptCatalog = errors.New("catalog: corrupt catalog data")

// ErrNotFound is returned by lookups for names absent from the index.
var ErrNotFound = errors.New("catalog: entry not found")

// Entry is a single medicine with its display variants.
type Entry struct {
	// Name is the display form from the source mapping.
	Name string

	// NormalizedName is Name lowercased and trimmed, derived once at load
	// time. Unique within an Index.
	NormalizedName string

	// Variants are full display labels (strength/form), in source order.
	// Never empty.
	Variants []string
}

// NormalizeName canonicalizes a catalog key: lowercased and trimmed.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Index is the immutable catalog index. All methods are safe for concurrent
// use without locking because an Index is read-only after construction.
type Index struct {
	entries []Entry
	byNorm  map[string]*Entry
}

// NewIndex builds an Index from entries in the given order. Returns an error
// wrapping [ErrCorruptCatalog] when the entries violate the catalog shape
// invariants.
func NewIndex(entries []Entry) (*Index, error) {
	idx := &Index{
		entries: make([]Entry, len(entries)),
		byNorm:  make(map[string]*Entry, len(entries)),
	}
	copy(idx.entries, entries)

	for i := range idx.entries {
		e := &idx.entries[i]
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty name", ErrCorruptCatalog, i)
		}
		if len(e.Variants) == 0 {
			return nil, fmt.Errorf("%w: entry %q has no variants", ErrCorruptCatalog, e.Name)
		}
		for j, v := range e.Variants {
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("%w: entry %q variant %d is empty", ErrCorruptCatalog, e.Name, j)
			}
		}

		e.NormalizedName = NormalizeName(e.Name)
		if prev, ok := idx.byNorm[e.NormalizedName]; ok {
			return nil, fmt.Errorf("%w: names %q and %q collide after case-folding", ErrCorruptCatalog, prev.Name, e.Name)
		}
		idx.byNorm[e.NormalizedName] = e
	}
	return idx, nil
}

// LookupNormalized returns the entry whose normalized name equals name
// exactly. Fuzzy comparison is the matcher's job, not the index's.
func (idx *Index) LookupNormalized(name string) (Entry, error) {
	e, ok := idx.byNorm[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *e, nil
}

// Entries returns the catalog entries in insertion order. The returned slice
// is shared; callers must not modify it.
func (idx *Index) Entries() []Entry { return idx.entries }

// Len returns the number of entries in the index.
func (idx *Index) Len() int { return len(idx.entries) }

// Handle owns the current catalog index and supports atomic replacement.
// Readers call Index at the start of a match cycle and use that snapshot
// throughout; a concurrent Reload never tears an in-flight match.
type Handle struct {
	current atomic.Pointer[Index]
}

// NewHandle creates a Handle serving idx.
func NewHandle(idx *Index) *Handle {
	h := &Handle{}
	h.current.Store(idx)
	return h
}

// Index returns the current index snapshot. Never nil for a Handle created
// via NewHandle.
func (h *Handle) Index() *Index { return h.current.Load() }

// Swap atomically replaces the current index with next. The caller must
// fully build next before swapping; readers see either the old or the new
// index, never a partial one.
func (h *Handle) Swap(next *Index) { h.current.Store(next) }
