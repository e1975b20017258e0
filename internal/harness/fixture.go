package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/atplug/internal/descriptor"
)

// Fixture is an overlay described in YAML:
//
//	name: only_apple
//	description: "Replace every fruit with a single apple"
//	plugs:
//	  - implementation: example.com/fruit.Apple
//	    provides: example.com/fruit.Fruit
//	    properties:
//	      id: Apple
//
// Property order is preserved.
type Fixture struct {
	// Name identifies the fixture, and names its golden snapshot.
	Name string `yaml:"name"`

	// Description explains what the overlay simulates.
	Description string `yaml:"description"`

	// Plugs are the descriptors of the overlay, in registration order.
	Plugs []FixturePlug `yaml:"plugs"`
}

// FixturePlug is one descriptor in a Fixture.
type FixturePlug struct {
	Implementation string            `yaml:"implementation"`
	Provides       string            `yaml:"provides"`
	Properties     orderedProperties `yaml:"properties,omitempty"`
}

// Descriptor converts the entry.
func (p FixturePlug) Descriptor() descriptor.Descriptor {
	return descriptor.New(p.Implementation, p.Provides, p.Properties.Properties)
}

type orderedProperties struct {
	descriptor.Properties
}

// UnmarshalYAML reads a flat mapping of scalars, keeping document order.
func (p *orderedProperties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	pairs := make([]descriptor.Property, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: property %q must be a scalar", v.Line, k.Value)
		}
		if seen[k.Value] {
			return fmt.Errorf("line %d: duplicate property %q", k.Line, k.Value)
		}
		seen[k.Value] = true
		pairs = append(pairs, descriptor.P(k.Value, v.Value))
	}
	p.Properties = descriptor.NewProperties(pairs...)
	return nil
}

// LoadFixture reads and parses a fixture YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture parses fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateFixture(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

func validateFixture(f *Fixture) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	for i, p := range f.Plugs {
		if p.Implementation == "" {
			return fmt.Errorf("plugs[%d]: implementation is required", i)
		}
		if p.Provides == "" {
			return fmt.Errorf("plugs[%d]: provides is required", i)
		}
	}
	return nil
}

// AddFixture adds every plug of f as a descriptor.
func (h *Harness) AddFixture(f *Fixture) *Harness {
	for _, p := range f.Plugs {
		h.AddDescriptor(p.Descriptor())
	}
	return h
}

// Load reads the fixture at path and adds its plugs.
func (h *Harness) Load(path string) *Harness {
	if h.err != nil {
		return h
	}
	f, err := LoadFixture(path)
	if err != nil {
		h.err = fmt.Errorf("harness: %s: %w", path, err)
		return h
	}
	return h.AddFixture(f)
}
