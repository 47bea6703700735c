package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// UserState is the per-user menu state: whether default favorites have
// been pushed yet, and which applications were present at first start.
//
// A missing state file means the user has never started the menu.
// All methods are safe for concurrent use.
type UserState struct {
	path string

	mu   sync.Mutex
	data stateFile
}

type stateFile struct {
	FirstStartup     bool     `yaml:"first_startup"`
	PreInstalledApps []string `yaml:"pre_installed_apps"`
}

// LoadUserState reads the state file at path.
func LoadUserState(path string) (*UserState, error) {
	s := &UserState{path: path, data: stateFile{FirstStartup: true}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user state: %w", err)
	}

	var f stateFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		// An empty file is the same as a missing one.
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to parse user state: %w", err)
	}
	s.data = f
	return s, nil
}

// Path returns the state file path.
func (s *UserState) Path() string {
	return s.path
}

// IsFirstStartup reports whether default favorites still need pushing.
func (s *UserState) IsFirstStartup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FirstStartup
}

// PreInstalledApps returns the remembered pre-installed applications.
func (s *UserState) PreInstalledApps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.PreInstalledApps)
}

// CompleteFirstStartup clears the first-run flag, remembers ids as the
// pre-installed applications and saves.
func (s *UserState) CompleteFirstStartup(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.FirstStartup = false
	s.data.PreInstalledApps = slices.Clone(ids)
	return s.saveLocked()
}

// RemovePreInstalledApps forgets ids and saves. Unknown ids are ignored.
func (s *UserState) RemovePreInstalledApps(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.data.PreInstalledApps)
	s.data.PreInstalledApps = slices.DeleteFunc(s.data.PreInstalledApps, func(id string) bool {
		return slices.Contains(ids, id)
	})
	if len(s.data.PreInstalledApps) == before {
		return nil
	}
	return s.saveLocked()
}

// Save writes the state file.
func (s *UserState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes to a temporary file and renames it over the old one so
// a crash never leaves a truncated state file.
func (s *UserState) saveLocked() error {
	data, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode user state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save user state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}
	return nil
}
