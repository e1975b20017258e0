package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// ManifestPath is the location of the manifest inside a source.
	ManifestPath = "META-INF/MANIFEST.MF"

	// DescriptorDir holds one JSON file per plug inside a source.
	DescriptorDir = "ATPLUG-INF"

	// DefaultHeader is the main-section attribute listing descriptor files.
	DefaultHeader = "AtPlug-Component"

	// VersionHeader is required first in every manifest.
	VersionHeader = "Manifest-Version"

	maxLineBytes = 72
)

// Manifest is the main section of a JAR-style manifest. Attribute names are
// matched case-insensitively and keep their insertion order. Per-entry
// sections after the main section are preserved verbatim.
type Manifest struct {
	attrs    *orderedmap.OrderedMap[string, attribute]
	sections []byte
}

type attribute struct {
	name  string
	value string
}

// New creates a manifest holding only "Manifest-Version: 1.0".
func New() *Manifest {
	m := &Manifest{attrs: orderedmap.New[string, attribute]()}
	m.Set(VersionHeader, "1.0")
	return m
}

// Parse reads a manifest. LF and CRLF line endings are accepted;
// continuation lines start with a single space.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{attrs: orderedmap.New[string, attribute]()}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		lineNo  int
		current *attribute
		rest    bytes.Buffer
		inMain  = true
	)
	flush := func() {
		if current != nil {
			m.attrs.Set(strings.ToLower(current.name), *current)
			current = nil
		}
	}
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if !inMain {
			rest.WriteString(line)
			rest.WriteString("\r\n")
			continue
		}
		switch {
		case line == "":
			flush()
			inMain = false
		case strings.HasPrefix(line, " "):
			if current == nil {
				return nil, fmt.Errorf("line %d: continuation without attribute", lineNo)
			}
			current.value += line[1:]
		default:
			flush()
			name, value, ok := strings.Cut(line, ":")
			if !ok || name == "" || strings.ContainsAny(name, " \t") {
				return nil, fmt.Errorf("line %d: malformed attribute %q", lineNo, line)
			}
			current = &attribute{name: name, value: strings.TrimPrefix(value, " ")}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	m.sections = bytes.TrimRight(rest.Bytes(), "\r\n")
	if len(m.sections) > 0 {
		m.sections = append(m.sections, "\r\n"...)
	}
	return m, nil
}

// Get returns the value of the named attribute.
func (m *Manifest) Get(name string) (string, bool) {
	a, ok := m.attrs.Get(strings.ToLower(name))
	return a.value, ok
}

// Set adds or replaces an attribute. A replaced attribute keeps its position.
func (m *Manifest) Set(name, value string) {
	m.attrs.Set(strings.ToLower(name), attribute{name: name, value: value})
}

// Remove deletes an attribute.
func (m *Manifest) Remove(name string) {
	m.attrs.Delete(strings.ToLower(name))
}

// Names returns the attribute names in order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, m.attrs.Len())
	for pair := m.attrs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Value.name)
	}
	return names
}

// WriteTo writes the manifest with CRLF line endings and lines wrapped at
// 72 bytes. Manifest-Version is always written first.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if v, ok := m.Get(VersionHeader); ok {
		writeAttribute(&buf, VersionHeader, v)
	}
	for pair := m.attrs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == strings.ToLower(VersionHeader) {
			continue
		}
		writeAttribute(&buf, pair.Value.name, pair.Value.value)
	}
	buf.WriteString("\r\n")
	if len(m.sections) > 0 {
		buf.Write(m.sections)
		buf.WriteString("\r\n")
	}
	return buf.WriteTo(w)
}

// Bytes returns the serialized manifest.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = m.WriteTo(&buf)
	return buf.Bytes()
}

// writeAttribute writes "name: value" split into lines of at most 72 bytes,
// never inside a UTF-8 sequence.
func writeAttribute(buf *bytes.Buffer, name, value string) {
	line := []byte(name + ": " + value)
	limit := maxLineBytes
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		buf.Write(line[:cut])
		buf.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineBytes - 1
	}
	buf.Write(line)
	buf.WriteString("\r\n")
}

// SplitHeader splits a component header value on commas, trimming
// whitespace and dropping empty entries.
func SplitHeader(value string) []string {
	var paths []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// JoinHeader builds a component header value from descriptor paths, sorted.
func JoinHeader(paths []string) string {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

// DescriptorPath returns the slash-separated path of an implementation's
// descriptor file inside a source.
func DescriptorPath(implementation string) string {
	return DescriptorDir + "/" + implementation + ".json"
}
