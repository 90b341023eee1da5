// Package prefs persists user preferences (currently the dashboard view
// mode) to a small JSON file, the server-side analog of browser local
// storage.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KeyViewMode is the preference key for the dashboard display mode.
const KeyViewMode = "viewMode"

// Store is a file-backed key-value preference store. A missing file behaves
// as an empty store; a corrupt file is treated as empty rather than failing
// startup.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// Open loads (or initializes) the preference store at path. If path is
// empty, prefs.json under the user config dir is used.
func Open(path string) (*Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, "cryptopulse", "prefs.json")
	}

	s := &Store{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read prefs: %w", err)
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		// Corrupt preference file: start fresh, the next Set overwrites it.
		s.values = make(map[string]string)
	}
	return s, nil
}

// Get returns the stored value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores and persists a value.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
