// Package draftstore persists form and workflow drafts as JSON blobs under
// caller-supplied keys. Absence of a stored draft is a normal initial
// state; malformed JSON is treated the same way rather than propagated.
package draftstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Store writes one file per key under a base directory.
type Store struct {
	dir    string
	logger *logrus.Logger
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create draft directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save marshals v and stores it under key, replacing any previous draft.
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode draft %q: %w", key, err)
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write draft %q: %w", key, err)
	}
	return nil
}

// Load reads the draft stored under key into v. It returns false when no
// draft exists; a malformed blob is logged and treated as absent, never
// surfaced as an error.
func (s *Store) Load(key string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read draft %q: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.WithError(err).WithField("key", key).
			Warn("Stored draft is malformed, treating as absent")
		return false, nil
	}
	return true, nil
}

// Delete removes the draft under key. Deleting a missing draft is a no-op.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Keys lists the keys of all stored drafts.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return keys, nil
}

// path maps a key to its backing file, flattening path separators so a
// key can never escape the store directory.
func (s *Store) path(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		default:
			return r
		}
	}, key)
	return filepath.Join(s.dir, sanitized+".json")
}
