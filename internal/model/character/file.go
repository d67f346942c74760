package character

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogue struct {
	Characters []Character `yaml:"characters"`
}

// LoadFile reads a YAML character catalogue from path.
func LoadFile(path string) ([]Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("character: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML character catalogue and validates that ids are present and unique.
func Parse(data []byte) ([]Character, error) {
	var doc catalogue
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("character: parse: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Characters))
	for i, c := range doc.Characters {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return nil, fmt.Errorf("character: entry %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("character: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		doc.Characters[i].ID = id
		if strings.TrimSpace(c.Name) == "" {
			doc.Characters[i].Name = id
		}
	}
	return doc.Characters, nil
}
