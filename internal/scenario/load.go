package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Format is a scenario file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported scenario file %s (want .yaml, .yml or .toml)", path)
}

// Parse decodes and validates one scenario.
func Parse(data []byte, format Format) (Scenario, error) {
	s, err := decode(data, format)
	if err != nil {
		return Scenario{}, err
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

func decode(data []byte, format Format) (Scenario, error) {
	var s Scenario

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return Scenario{}, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &s)
		if err != nil {
			return Scenario{}, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Scenario{}, fmt.Errorf("decode toml: unknown key %s", undecoded[0])
		}
	default:
		return Scenario{}, fmt.Errorf("unknown format %q", format)
	}
	return s, nil
}

// LoadFile reads a scenario file. A missing name defaults to the file name
// without its extension.
func LoadFile(path string) (Scenario, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Scenario{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}

	s, err := decode(data, format)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// Discover expands glob patterns (with ** support) into a sorted,
// de-duplicated list of scenario files.
func Discover(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if _, err := FormatOf(m); err != nil {
				continue
			}
			if info, err := os.Stat(m); err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// LoadAll loads every scenario file matched by patterns.
func LoadAll(patterns []string) ([]Scenario, error) {
	files, err := Discover(patterns)
	if err != nil {
		return nil, err
	}

	scenarios := make([]Scenario, 0, len(files))
	for _, f := range files {
		s, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
