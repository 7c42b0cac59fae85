package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"leopacolor/internal/domain"
)

// RecordStore persists one mapping of id to record as a single JSON document.
// Every mutation is a full load-mutate-save cycle; there is no locking, so
// concurrent writers race and the last save wins.
type RecordStore[T any] struct {
	path string
}

// NewRecordStore initializes a store backed by <dir>/<name>.json.
func NewRecordStore[T any](dir, name string) *RecordStore[T] {
	return &RecordStore[T]{path: filepath.Join(dir, name+".json")}
}

// Load reads the whole document. A missing or empty document yields an empty
// mapping; a document that exists but cannot be decoded fails with
// domain.ErrCorruptedStore.
func (s *RecordStore[T]) Load() (map[string]T, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]T{}, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", filepath.Base(s.path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]T{}, nil
	}
	records := map[string]T{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w: %w", filepath.Base(s.path), domain.ErrCorruptedStore, err)
	}
	return records, nil
}

// Save serializes the full mapping and overwrites the document.
func (s *RecordStore[T]) Save(records map[string]T) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", filepath.Base(s.path), err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", filepath.Base(s.path), err)
	}
	return nil
}
