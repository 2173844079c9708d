package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings holds the base and environment-specific settings files.
type Settings struct {
	Base        map[string]any
	Environment map[string]any
	BasePath    string
	EnvPath     string
}

// LoadSettings reads settings.yaml and settings.<environment>.yaml from dir.
// Missing files yield empty layers; malformed files are an error.
func LoadSettings(dir, environment string) (*Settings, error) {
	s := &Settings{
		BasePath: filepath.Join(dir, "settings.yaml"),
	}
	if environment != "" {
		s.EnvPath = filepath.Join(dir, fmt.Sprintf("settings.%s.yaml", environment))
	}

	var err error
	if s.Base, err = loadSettingsFile(s.BasePath); err != nil {
		return nil, err
	}
	if s.EnvPath != "" {
		if s.Environment, err = loadSettingsFile(s.EnvPath); err != nil {
			return nil, err
		}
	} else {
		s.Environment = map[string]any{}
	}
	return s, nil
}

func loadSettingsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Resolver builds a resolver over these settings.
func (s *Settings) Resolver(environ []string, prefix string) *Resolver {
	return NewResolver(s.Base, s.Environment, environ, prefix)
}
