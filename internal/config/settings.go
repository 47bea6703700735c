// Package config loads global menu settings and persists per-user state.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Settings are the system-wide menu settings.
type Settings struct {
	// DefaultFavoriteApps are favorited, in order, on a user's first start.
	DefaultFavoriteApps []string `yaml:"default_favorite_apps" toml:"default_favorite_apps"`
}

// LoadSettings reads settings from a .yaml, .yml or .toml file. A missing
// file yields zero settings. Unknown keys are rejected in both formats.
func LoadSettings(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return s, fmt.Errorf("failed to parse YAML settings: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return s, fmt.Errorf("failed to parse TOML settings: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return s, fmt.Errorf("unknown settings keys: %v", undecoded)
		}
	default:
		return s, fmt.Errorf("unsupported settings format %q", ext)
	}

	return s, nil
}
