package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// LoadFile reads and parses the catalog JSON file at path.
// It is a convenience wrapper around [LoadFromReader].
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	idx, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	return idx, nil
}

// LoadFromReader parses a catalog from r and builds an [Index].
//
// The expected shape is a single JSON object mapping each medicine name to a
// non-empty array of non-empty variant strings:
//
//	{
//	  "Paracetamol": ["Paracetamol 500mg Tablet", "Paracetamol 650mg Tablet"],
//	  "Ibuprofen":   ["Ibuprofen 200mg Tablet"]
//	}
//
// Keys are consumed through the json.Decoder token stream rather than a Go
// map so that the source ordering survives into the index. Any shape
// violation wraps [ErrCorruptCatalog].
func LoadFromReader(r io.Reader) (*Index, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: read key: %v", ErrCorruptCatalog, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key is not a string", ErrCorruptCatalog)
		}

		var variants []string
		if err := dec.Decode(&variants); err != nil {
			return nil, fmt.Errorf("%w: value for %q is not a string list: %v", ErrCorruptCatalog, name, err)
		}

		entries = append(entries, Entry{Name: name, Variants: variants})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	// Trailing garbage after the closing brace is a corrupt file, not EOF.
	if tok, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected trailing content %v", ErrCorruptCatalog, tok)
	}

	return NewIndex(entries)
}

// Reload builds a new index from the file at path and swaps it into h.
// On any error the handle keeps serving the previous index.
func (h *Handle) Reload(path string) error {
	idx, err := LoadFile(path)
	if err != nil {
		return err
	}
	h.Swap(idx)
	return nil
}

// expectDelim consumes one token from dec and checks it is the delimiter d.
func expectDelim(dec *json.Decoder, d json.Delim) error {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected end of input", ErrCorruptCatalog)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}
	got, ok := tok.(json.Delim)
	if !ok || got != d {
		return fmt.Errorf("%w: expected %q, got %v", ErrCorruptCatalog, d, tok)
	}
	return nil
}
