package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/atplug/internal/descriptor"
)

// Publisher writes descriptor files and the component header into a
// resources directory that is shipped alongside the build output.
type Publisher struct {
	// Dir is the resources root that receives META-INF and ATPLUG-INF.
	Dir string
	// Header is the attribute name. Defaults to DefaultHeader.
	Header string
	Logger *slog.Logger
}

func (p *Publisher) header() string {
	if p.Header == "" {
		return DefaultHeader
	}
	return p.Header
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Publish replaces the descriptor directory with one file per descriptor and
// updates the manifest header. It reports whether the manifest changed.
// With no descriptors the header is removed.
func (p *Publisher) Publish(descs []descriptor.Descriptor) (bool, error) {
	files := make(map[string][]byte, len(descs))
	paths := make([]string, 0, len(descs))
	for _, d := range descs {
		rel := DescriptorPath(d.Implementation())
		if _, dup := files[rel]; dup {
			return false, fmt.Errorf("publish: duplicate descriptor for %s", d.Implementation())
		}
		data, err := d.Encode()
		if err != nil {
			return false, err
		}
		files[rel] = data
		paths = append(paths, rel)
	}

	descDir := filepath.Join(p.Dir, DescriptorDir)
	if err := os.RemoveAll(descDir); err != nil {
		return false, fmt.Errorf("publish: clean %s: %w", descDir, err)
	}
	for rel, data := range files {
		target := filepath.Join(p.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return false, fmt.Errorf("publish: %w", err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return false, fmt.Errorf("publish: %w", err)
		}
	}

	changed, err := p.writeManifest(JoinHeader(paths))
	if err != nil {
		return false, err
	}
	p.logger().Info("published descriptors", "dir", p.Dir, "descriptors", len(descs), "manifest_changed", changed)
	return changed, nil
}

// writeManifest sets or removes the header, writing only when the result
// differs from what is on disk.
func (p *Publisher) writeManifest(value string) (bool, error) {
	path := filepath.Join(p.Dir, filepath.FromSlash(ManifestPath))

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("publish: read manifest: %w", err)
	}
	m := New()
	if existing != nil {
		if m, err = Parse(bytes.NewReader(existing)); err != nil {
			return false, fmt.Errorf("publish: parse %s: %w", path, err)
		}
		if _, ok := m.Get(VersionHeader); !ok {
			m.Set(VersionHeader, "1.0")
		}
	}

	if value == "" {
		m.Remove(p.header())
	} else {
		m.Set(p.header(), value)
	}

	out := m.Bytes()
	if bytes.Equal(out, existing) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("publish: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return false, fmt.Errorf("publish: write manifest: %w", err)
	}
	return true, nil
}

// Expected computes the header value implied by the descriptor files on disk.
func (p *Publisher) Expected() (string, error) {
	descDir := filepath.Join(p.Dir, DescriptorDir)
	var paths []string
	err := filepath.WalkDir(descDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(p.Dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return JoinHeader(paths), nil
}

// UpToDate compares the manifest header with the descriptor directory
// listing, textually.
func (p *Publisher) UpToDate() (bool, error) {
	expected, err := p.Expected()
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(filepath.Join(p.Dir, filepath.FromSlash(ManifestPath)))
	if errors.Is(err, fs.ErrNotExist) {
		return expected == "", nil
	}
	if err != nil {
		return false, err
	}
	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	actual, _ := m.Get(p.header())
	return actual == expected, nil
}
