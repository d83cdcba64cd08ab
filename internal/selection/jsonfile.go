package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var _ Store = (*JSONFileStore)(nil)

// JSONFileStore keeps all records in a single JSON array on disk. Every
// append rewrites the whole file through a temp-file rename so readers never
// observe a half-written array. Suitable for single-process deployments;
// concurrent processes writing the same file will lose records.
type JSONFileStore struct {
	path string

	mu sync.Mutex
}

// NewJSONFileStore creates a store backed by the file at path. The file is
// created on the first append; a missing file reads as an empty list.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("selection: store path must not be empty")
	}
	return &JSONFileStore{path: path}, nil
}

// Append implements [Store].
func (s *JSONFileStore) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("selection: invalid record: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("selection: encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".selections-*.json")
	if err != nil {
		return fmt.Errorf("selection: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("selection: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("selection: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("selection: replace %q: %w", s.path, err)
	}
	return nil
}

// List implements [Store].
func (s *JSONFileStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Close implements [Store]. The file store holds no open resources.
func (s *JSONFileStore) Close() error { return nil }

// readLocked loads the current array. Must be called with s.mu held.
func (s *JSONFileStore) readLocked() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("selection: read %q: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("selection: parse %q: %w", s.path, err)
	}
	return records, nil
}
