// Package settings persists the host user's preferences between runs.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// UserSettings holds persistable user preferences
type UserSettings struct {
	Language     string `json:"appLanguage"`
	LastSourceID string `json:"lastSourceId,omitempty"`
}

// DefaultSettings returns the default settings
func DefaultSettings() UserSettings {
	return UserSettings{Language: "en"}
}

// DefaultPath returns the settings file path.
// Uses XDG_CONFIG_HOME if set, otherwise the OS user config directory.
func DefaultPath() (string, error) {
	var configDir string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "sharehost")
	} else {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(userConfigDir, "sharehost")
	}

	return filepath.Join(configDir, "settings.json"), nil
}

// Store reads and writes settings at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads settings from the file.
// Returns default settings if file doesn't exist or is invalid.
func (s *Store) Load() (UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (UserSettings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist - use defaults, not an error
			return settings, nil
		}
		return settings, err
	}

	// Parse JSON, keeping defaults for missing fields
	if err := json.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), nil
	}

	return settings, nil
}

// Save writes settings to the file
func (s *Store) Save(settings UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

func (s *Store) save(settings UserSettings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// Update loads, applies fn and saves in one step.
func (s *Store) Update(fn func(*UserSettings)) (UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return settings, err
	}
	fn(&settings)
	return settings, s.save(settings)
}
