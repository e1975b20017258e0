package descriptor

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// DomainDescriptor separates descriptor identity hashes from any other
// SHA-256 use in the module. The version suffix allows migration.
const DomainDescriptor = "atplug/descriptor/v1"

// Descriptor is the persisted metadata of a plug: the concrete type, the
// socket it provides, and its properties. Descriptors are values; two
// descriptors with equal fields are interchangeable.
type Descriptor struct {
	implementation string
	provides       string
	properties     Properties
}

// New creates a Descriptor.
func New(implementation, provides string, properties Properties) Descriptor {
	return Descriptor{
		implementation: implementation,
		provides:       provides,
		properties:     NewProperties(properties.Pairs()...),
	}
}

// Implementation returns the canonical name of the concrete plug type.
func (d Descriptor) Implementation() string { return d.implementation }

// Provides returns the canonical name of the socket type.
func (d Descriptor) Provides() string { return d.provides }

// Properties returns the metadata map.
func (d Descriptor) Properties() Properties { return d.properties }

// Property returns a single metadata value.
func (d Descriptor) Property(key string) (string, bool) {
	return d.properties.Get(key)
}

// IsZero reports whether d is the zero Descriptor.
func (d Descriptor) IsZero() bool {
	return d.implementation == "" && d.provides == "" && d.properties.Len() == 0
}

// Equal reports structural equality.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.implementation == o.implementation &&
		d.provides == o.provides &&
		d.properties.Equal(o.properties)
}

// String renders "<provides> by <implementation> with {k=v, ...}".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s by %s with %s", d.provides, d.implementation, d.properties)
}

// Digest returns the content digest of the descriptor.
//
// Format: sha256(DomainDescriptor + 0x00 + canonical JSON). Property order
// does not affect the digest, so Digest agrees with Equal.
func (d Descriptor) Digest() (digest.Digest, error) {
	canonical, err := marshalCanonical(map[string]any{
		"implementation": d.implementation,
		"provides":       d.provides,
		"properties":     d.properties.Map(),
	})
	if err != nil {
		return "", fmt.Errorf("descriptor digest: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainDescriptor))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return digest.NewDigest(digest.SHA256, h), nil
}

// Key returns the digest as a string for use as a map key.
// Descriptors only hold strings, so the canonical encoding cannot fail.
func (d Descriptor) Key() string {
	dg, err := d.Digest()
	if err != nil {
		panic(err)
	}
	return dg.String()
}

// wire fixes the on-disk field order.
type wire struct {
	Implementation string     `json:"implementation"`
	Provides       string     `json:"provides"`
	Properties     Properties `json:"properties"`
}

// Encode returns the canonical on-disk form: pretty-printed UTF-8 JSON with
// four-space indentation, no trailing newline.
func (d Descriptor) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(wire{
		Implementation: d.implementation,
		Provides:       d.provides,
		Properties:     d.properties,
	}); err != nil {
		return nil, fmt.Errorf("encode descriptor %s: %w", d.implementation, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// MustEncode is like Encode but panics on error.
func (d Descriptor) MustEncode() []byte {
	data, err := d.Encode()
	if err != nil {
		panic(err)
	}
	return data
}

// MarshalJSON implements json.Marshaler using the on-disk field order.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{
		Implementation: d.implementation,
		Provides:       d.provides,
		Properties:     d.properties,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse decodes a descriptor. Both implementation and provides are required.
func Parse(data []byte) (Descriptor, error) {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor: %w", err)
	}
	// One document per resource; anything after it but whitespace is rejected.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Descriptor{}, fmt.Errorf("parse descriptor: trailing data after object")
	}
	if w.Implementation == "" {
		return Descriptor{}, fmt.Errorf("parse descriptor: missing implementation")
	}
	if w.Provides == "" {
		return Descriptor{}, fmt.Errorf("parse descriptor %s: missing provides", w.Implementation)
	}
	return Descriptor{
		implementation: w.Implementation,
		provides:       w.Provides,
		properties:     w.Properties,
	}, nil
}

// Wire returns an empty value with the on-disk shape, for schema reflection.
func Wire() any {
	return &wire{}
}
