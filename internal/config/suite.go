package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Suite is the YAML document layout:
//
//	cases:
//	  - name: dual+add
//	    fuse_dual: true
//	    fuse_add: true
//	    seed: 7
//
// Omitted fields take their DefaultCase value.
type Suite struct {
	Cases []Case `yaml:"cases"`
}

// DefaultSuite returns one case per topology on the default geometry.
func DefaultSuite() []Case {
	flags := []struct {
		name                string
		shortcut, dual, add bool
	}{
		{"plain", false, false, false},
		{"plain+add", false, false, true},
		{"shortcut", true, false, false},
		{"shortcut+add", true, false, true},
		{"dual", false, true, false},
		{"dual+add", false, true, true},
	}

	cases := make([]Case, 0, len(flags))
	for i, f := range flags {
		c := DefaultCase()
		c.Name = f.name
		c.FuseShortcut, c.FuseDual, c.FuseAdd = f.shortcut, f.dual, f.add
		c.Seed = uint64(i + 1)
		cases = append(cases, c)
	}
	return cases
}

// ParseSuite decodes and validates a YAML suite.
func ParseSuite(data []byte) ([]Case, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: failed to parse suite: %w", err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("%w: suite has no cases", ErrInvalidCase)
	}

	seen := make(map[string]bool, len(s.Cases))
	for _, c := range s.Cases {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate case name %q", ErrInvalidCase, c.Name)
		}
		seen[c.Name] = true
	}
	return s.Cases, nil
}

// LoadSuite reads a YAML suite from path.
func LoadSuite(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read suite: %w", err)
	}
	return ParseSuite(data)
}

// Select returns the case called name.
func Select(cases []Case, name string) (Case, error) {
	for _, c := range cases {
		if c.Name == name {
			return c, nil
		}
	}
	return Case{}, fmt.Errorf("config: no case named %q", name)
}
