package manifest

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
)

// Reader loads descriptors from sources.
type Reader struct {
	// Header is the main-section attribute listing descriptor files.
	Header string
	Logger *slog.Logger
}

// Read returns the descriptors a source declares, in header order.
//
// A source without a manifest, or whose manifest lacks the header, yields
// nothing. Any read or parse failure is retried once against a fresh open of
// the source; a second failure is returned as *plugerr.ManifestParseError.
func (r Reader) Read(src Source) ([]descriptor.Descriptor, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	descs, err := r.read(src, false)
	if err == nil {
		return descs, nil
	}
	logger.Warn("manifest read failed, retrying without cache", "source", src.Name(), "error", err)

	descs, err = r.read(src, true)
	if err != nil {
		var mpe *plugerr.ManifestParseError
		if errors.As(err, &mpe) {
			return nil, err
		}
		return nil, &plugerr.ManifestParseError{Source: src.Name(), Err: err}
	}
	return descs, nil
}

func (r Reader) read(src Source, fresh bool) ([]descriptor.Descriptor, error) {
	header := r.Header
	if header == "" {
		header = DefaultHeader
	}

	fsys, err := src.Open(fresh)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(fsys, ManifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &plugerr.ManifestParseError{Source: src.Name(), Path: ManifestPath, Err: err}
	}
	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &plugerr.ManifestParseError{Source: src.Name(), Path: ManifestPath, Err: err}
	}
	value, ok := m.Get(header)
	if !ok {
		return nil, nil
	}

	var descs []descriptor.Descriptor
	for _, p := range SplitHeader(value) {
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, &plugerr.ManifestParseError{Source: src.Name(), Path: p, Err: err}
		}
		d, err := descriptor.Parse(raw)
		if err != nil {
			return nil, &plugerr.ManifestParseError{Source: src.Name(), Path: p, Err: err}
		}
		descs = append(descs, d)
	}
	return descs, nil
}
