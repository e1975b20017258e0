package descriptor

import (
	"bytes"
	"fmt"
	"maps"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Property is a single metadata entry.
type Property struct {
	Key   string
	Value string
}

// P is a shorthand for Property.
// Example: NewProperties(P("id", "Apple"), P("color", "red"))
func P(key, value string) Property {
	return Property{Key: key, Value: value}
}

// Properties is an immutable, insertion-ordered string map.
//
// The zero value is an empty map. Methods never mutate the receiver; With
// returns a modified copy.
type Properties struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewProperties builds Properties from pairs. A repeated key keeps its first
// position and takes the last value.
func NewProperties(pairs ...Property) Properties {
	m := orderedmap.New[string, string](len(pairs))
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return Properties{m: m}
}

// Get returns the value stored under key.
func (p Properties) Get(key string) (string, bool) {
	if p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// Len returns the number of entries.
func (p Properties) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in insertion order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, p.Len())
	for _, pr := range p.Pairs() {
		keys = append(keys, pr.Key)
	}
	return keys
}

// Pairs returns a copy of the entries in insertion order.
func (p Properties) Pairs() []Property {
	pairs := make([]Property, 0, p.Len())
	if p.m == nil {
		return pairs
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		pairs = append(pairs, Property{Key: pair.Key, Value: pair.Value})
	}
	return pairs
}

// With returns a copy with key set to value.
func (p Properties) With(key, value string) Properties {
	return NewProperties(append(p.Pairs(), P(key, value))...)
}

// Map returns the entries as an unordered map.
func (p Properties) Map() map[string]string {
	out := make(map[string]string, p.Len())
	for _, pr := range p.Pairs() {
		out[pr.Key] = pr.Value
	}
	return out
}

// Equal reports whether both maps hold the same entries. Order is ignored.
func (p Properties) Equal(o Properties) bool {
	return maps.Equal(p.Map(), o.Map())
}

// String renders the entries as {k=v, k=v} in insertion order.
func (p Properties) String() string {
	parts := make([]string, 0, p.Len())
	for _, pr := range p.Pairs() {
		parts = append(parts, pr.Key+"="+pr.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the entries as a JSON object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p.m == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object of strings, keeping document order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, string]()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.m = m
		return nil
	}
	if err := m.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	p.m = m
	return nil
}
