package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/atplug/internal/config"
	"github.com/roach88/atplug/internal/manifest"
)

// openSources turns path arguments into plugin sources. With no arguments
// the configured resources directory is used.
func openSources(paths []string, cfg *config.Config) ([]manifest.Source, error) {
	if len(paths) == 0 {
		paths = []string{cfg.Resources}
	}
	sources := make([]manifest.Source, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			sources = append(sources, manifest.Dir(p))
		} else {
			sources = append(sources, manifest.Archive(p))
		}
	}
	return sources, nil
}

func closeSources(sources []manifest.Source) {
	for _, src := range sources {
		if a, ok := src.(*manifest.ArchiveSource); ok {
			_ = a.Close()
		}
	}
}

// listedFiles returns the descriptor paths the manifest header of src names.
func listedFiles(src manifest.Source, header string) (fs.FS, []string, error) {
	fsys, err := src.Open(false)
	if err != nil {
		return nil, nil, err
	}
	data, err := fs.ReadFile(fsys, manifest.ManifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fsys, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", manifest.ManifestPath, err)
	}
	value, ok := m.Get(header)
	if !ok {
		return fsys, nil, nil
	}
	return fsys, manifest.SplitHeader(value), nil
}
