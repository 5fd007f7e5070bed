package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseSearchYAML parses a Search from YAML bytes, fills defaults and validates it.
// This is used for APIs where the search is provided as payload (not via filesystem).
func ParseSearchYAML(data []byte) (*Search, error) {
	var s Search
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse search yaml: %w", err)
	}

	applyDefaults(&s)

	if err := validateSearch(&s); err != nil {
		return nil, fmt.Errorf("invalid search: %w", err)
	}

	return &s, nil
}

// ParseSearchYAMLString parses a Search from a YAML string.
func ParseSearchYAMLString(yamlText string) (*Search, error) {
	return ParseSearchYAML([]byte(yamlText))
}

// Marshal renders the search back to YAML
func (s *Search) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
