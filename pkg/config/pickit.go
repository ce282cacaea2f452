package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PickitRule decides whether a dropped item is worth picking up.
type PickitRule struct {
	// Name matches the item base name, case-insensitive.
	Name string `yaml:"name" validate:"required"`

	// Quality restricts the match (normal, magic, rare, set, unique);
	// empty matches any quality.
	Quality string `yaml:"quality" validate:"omitempty,oneof=normal magic rare set unique"`

	// Ethereal restricts to ethereal items when true.
	Ethereal bool `yaml:"ethereal"`
}

// Pickit is an ordered rule list. First match wins.
type Pickit struct {
	Rules []PickitRule `yaml:"rules" validate:"dive"`
}

// Wants reports whether an item matches any rule.
func (p *Pickit) Wants(name, quality string, ethereal bool) bool {
	for _, r := range p.Rules {
		if !strings.EqualFold(r.Name, name) {
			continue
		}
		if r.Quality != "" && !strings.EqualFold(r.Quality, quality) {
			continue
		}
		if r.Ethereal && !ethereal {
			continue
		}
		return true
	}
	return false
}

// LoadPickit reads and validates a pickit rules file.
func LoadPickit(path string) (*Pickit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pickit %s: %w", path, err)
	}

	var p Pickit
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pickit %s: %w", path, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid pickit %s: %w", path, err)
	}
	return &p, nil
}
