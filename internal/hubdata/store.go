package hubdata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// requiredSections must all be present or the document is reset.
var requiredSections = []string{"canvas-hub", "canvas-user", "versions"}

// Logger is the logging surface used by the store.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Store owns the hub document. Every read returns a copy and every write
// goes through Update or Replace, which persist the result atomically.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	path     string
	defaults Document
	logger   Logger

	mu  sync.RWMutex
	doc Document
}

// Open loads the document at path, creating it from defaults when absent.
//
// An empty document, or one missing a required section, is replaced with
// defaults. A document missing only canvas-user gains an empty one.
func Open(path string, defaults Document, logger Logger) (*Store, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Store{
		path:     path,
		defaults: defaults.Clone(),
		logger:   logger,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %w", ErrSaveFailed, err)
	}

	doc, rewrite, err := s.load()
	if err != nil {
		return nil, err
	}
	s.doc = doc
	if rewrite {
		if err := s.writeLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load reads and heals the document. rewrite reports whether the on-disk
// copy must be replaced.
func (s *Store) load() (Document, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.defaults.Clone(), true, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		s.logger.Warn("hub document unreadable, resetting to defaults", "path", s.path, "error", err)
		return s.defaults.Clone(), true, nil
	}

	rewrite := false
	if _, ok := raw["canvas-user"]; !ok && hasKeys(raw, "canvas-hub", "versions") {
		raw["canvas-user"] = map[string]any{}
		rewrite = true
	}
	if !hasKeys(raw, requiredSections...) {
		s.logger.Info("hub document missing sections, resetting to defaults", "path", s.path)
		return s.defaults.Clone(), true, nil
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("hub document malformed, resetting to defaults", "path", s.path, "error", err)
		return s.defaults.Clone(), true, nil
	}
	return doc, rewrite, nil
}

func hasKeys(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// Path returns the document location on disk.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Update applies fn to the document under the write lock and saves it.
// If fn returns an error the document is left unchanged.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	prev := s.doc
	s.doc = next
	if err := s.writeLocked(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// Replace swaps the whole document and saves it.
func (s *Store) Replace(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc
	s.doc = doc.Clone()
	if err := s.writeLocked(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// Reset replaces the document with defaults.
func (s *Store) Reset() error {
	return s.Replace(s.defaults)
}

// Remove deletes the document file and resets the in-memory copy to defaults.
// The file is recreated on the next write.
func (s *Store) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	s.doc = s.defaults.Clone()
	return nil
}

// writeLocked persists the document via temp file and rename.
// Caller must hold s.mu.
func (s *Store) writeLocked() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrSaveFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".hubdata-*.yml")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}
