package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromPath reads a policy file (YAML or JSON), validates it and returns
// the parsed Policy. Format is detected by extension, then by content.
func LoadFromPath(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses a policy from bytes. ext is the file extension for format
// hint; empty means detect from content (JSON if the document starts
// with "{", YAML otherwise).
func Load(data []byte, ext string) (*Policy, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}

	var p Policy
	switch ext {
	case ".yaml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("policy: parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("policy: parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("policy: unsupported format %q", ext)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
