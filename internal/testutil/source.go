package testutil

import (
	"testing/fstest"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/manifest"
)

// ManifestFS lays out descs the way the publisher does: one descriptor file
// per implementation and a manifest listing them under the default header.
func ManifestFS(descs ...descriptor.Descriptor) fstest.MapFS {
	fsys := fstest.MapFS{}
	paths := make([]string, 0, len(descs))
	for _, d := range descs {
		p := manifest.DescriptorPath(d.Implementation())
		fsys[p] = &fstest.MapFile{Data: d.MustEncode()}
		paths = append(paths, p)
	}
	m := manifest.New()
	if len(paths) > 0 {
		m.Set(manifest.DefaultHeader, manifest.JoinHeader(paths))
	}
	fsys[manifest.ManifestPath] = &fstest.MapFile{Data: m.Bytes()}
	return fsys
}

// ManifestSource wraps ManifestFS as a named source.
func ManifestSource(name string, descs ...descriptor.Descriptor) manifest.Source {
	return manifest.FS(name, ManifestFS(descs...))
}

// BrokenSource returns a source whose manifest lists a descriptor file that
// does not exist.
func BrokenSource(name string) manifest.Source {
	m := manifest.New()
	m.Set(manifest.DefaultHeader, "ATPLUG-INF/missing.json")
	return manifest.FS(name, fstest.MapFS{
		manifest.ManifestPath: &fstest.MapFile{Data: m.Bytes()},
	})
}
