// Package customize resolves per-model configuration overrides.
//
// Overrides live in a YAML file keyed by "{model pattern}:{element}":
//
//	brand.fan.v1:fan:speed:
//	  icon: mdi:fan-speed-3
//	brand.fan.*:speed:
//	  unit: rpm
//	"*:info":
//	  hidden: true
//
// Callers build an ordered key list (see WildcardModels) and take the
// first key that configures the requested option.
package customize

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFile is returned when an override file cannot be parsed.
var ErrInvalidFile = errors.New("customize: invalid file")

// WildcardModels expands a model into patterns from most to least specific:
// "brand.fan.v1" yields brand.fan.v1, brand.fan.*, brand.*, *.
func WildcardModels(model string) []string {
	if model == "" {
		return nil
	}
	parts := strings.Split(model, ".")
	out := make([]string, 0, len(parts)+1)
	out = append(out, model)
	for i := len(parts) - 1; i > 0; i-- {
		out = append(out, strings.Join(parts[:i], ".")+".*")
	}
	return append(out, "*")
}

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store holds override entries and answers first-match lookups.
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
	path    string
	logger  Logger
}

// NewStore creates a store from in-memory entries.
func NewStore(entries map[string]map[string]any) *Store {
	if entries == nil {
		entries = make(map[string]map[string]any)
	}
	return &Store{entries: entries, logger: noopLogger{}}
}

// Load reads an override file. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := NewStore(nil)
	s.path = path
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Reload re-reads the file the store was loaded from.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path) //nolint:gosec // path comes from trusted config
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("customize file not found, no overrides loaded", "path", s.path)
		data = nil
	} else if err != nil {
		return fmt.Errorf("reading customize file: %w", err)
	}

	entries := make(map[string]map[string]any)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info("customize overrides loaded", "path", s.path, "entries", len(entries))
	return nil
}

// Set configures a single option for a key.
func (s *Store) Set(key, option string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[key] == nil {
		s.entries[key] = make(map[string]any)
	}
	s.entries[key][option] = value
}

// Lookup returns the option value from the first key that configures it,
// or def when none does.
func (s *Store) Lookup(keys []string, option string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		if v, ok := s.entries[k][option]; ok {
			return v
		}
	}
	return def
}

// Len returns the number of configured keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
