package manifest

import (
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nlepage/go-tarfs"
)

// Source is one root that may carry a manifest and descriptor files.
//
// Open returns the source's file system. Implementations may cache it;
// fresh=true must bypass any cache and reopen from the backing store.
type Source interface {
	Name() string
	Open(fresh bool) (fs.FS, error)
}

// FS wraps an already open file system, typically an embed.FS.
func FS(name string, fsys fs.FS) Source {
	return fsSource{name: name, fsys: fsys}
}

type fsSource struct {
	name string
	fsys fs.FS
}

func (s fsSource) Name() string { return s.name }

func (s fsSource) Open(bool) (fs.FS, error) { return s.fsys, nil }

// Dir is a directory on disk.
func Dir(path string) Source {
	return dirSource(path)
}

type dirSource string

func (s dirSource) Name() string { return string(s) }

func (s dirSource) Open(bool) (fs.FS, error) {
	info, err := os.Stat(string(s))
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", s)
	}
	return os.DirFS(string(s)), nil
}

// Archive is a zip (or jar) file, or a tar file optionally gzip-compressed.
// The format is detected from the content. The opened archive is cached
// until a fresh open is requested.
func Archive(path string) *ArchiveSource {
	return &ArchiveSource{path: path}
}

// ArchiveSource is the Source returned by Archive.
type ArchiveSource struct {
	path string

	mu     sync.Mutex
	fsys   fs.FS
	closer io.Closer
}

// Name returns the archive path.
func (s *ArchiveSource) Name() string { return s.path }

// Open returns the archive's file system, reopening it when fresh is set.
func (s *ArchiveSource) Open(fresh bool) (fs.FS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsys != nil && !fresh {
		return s.fsys, nil
	}
	s.closeLocked()

	fsys, closer, err := openArchive(s.path)
	if err != nil {
		return nil, err
	}
	s.fsys, s.closer = fsys, closer
	return fsys, nil
}

// Close releases the cached archive.
func (s *ArchiveSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *ArchiveSource) closeLocked() error {
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	s.fsys, s.closer = nil, nil
	return err
}

func openArchive(path string) (fs.FS, io.Closer, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("detect archive type of %s: %w", path, err)
	}

	switch {
	case is(mime, "application/zip"):
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr, nil
	case is(mime, "application/x-tar"):
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		tfs, err := tarfs.New(f)
		if err != nil {
			return nil, nil, fmt.Errorf("read tar %s: %w", path, err)
		}
		return tfs, nil, nil
	case is(mime, "application/gzip"):
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("read gzip %s: %w", path, err)
		}
		defer gz.Close()
		tfs, err := tarfs.New(gz)
		if err != nil {
			return nil, nil, fmt.Errorf("read tar %s: %w", path, err)
		}
		return tfs, nil, nil
	default:
		return nil, nil, fmt.Errorf("%s: unsupported archive type %s", path, mime.String())
	}
}

// is reports whether mime or one of its parents is want, so that a jar
// is treated as a zip.
func is(mime *mimetype.MIME, want string) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// FromPath builds sources from an OS path list (as in ATPLUG_PATH).
// Directories become Dir sources and files become Archive sources.
// Entries that do not exist are skipped, like classpath entries.
func FromPath(list string, logger *slog.Logger) []Source {
	if logger == nil {
		logger = slog.Default()
	}
	var sources []Source
	for _, entry := range filepath.SplitList(list) {
		if entry == "" {
			continue
		}
		info, err := os.Stat(entry)
		if err != nil {
			logger.Warn("skipping plugin path entry", "entry", entry, "error", err)
			continue
		}
		if info.IsDir() {
			sources = append(sources, Dir(entry))
		} else {
			sources = append(sources, Archive(entry))
		}
	}
	return sources
}

var registered struct {
	mu        sync.Mutex
	sources   []Source
	listeners []func(Source)
}

// Register adds an embedded file system to the process-wide source list.
// Packages call it from init with their embedded resources.
func Register(name string, fsys fs.FS) {
	src := FS(name, fsys)

	registered.mu.Lock()
	defer registered.mu.Unlock()

	registered.sources = append(registered.sources, src)
	for _, fn := range registered.listeners {
		fn(src)
	}
}

// Subscribe returns the sources registered so far and arranges for fn to be
// called with every source registered afterwards. No source is missed or
// delivered twice.
func Subscribe(fn func(Source)) []Source {
	registered.mu.Lock()
	defer registered.mu.Unlock()

	registered.listeners = append(registered.listeners, fn)
	return append([]Source(nil), registered.sources...)
}

// Registered returns the sources registered so far.
func Registered() []Source {
	registered.mu.Lock()
	defer registered.mu.Unlock()
	return append([]Source(nil), registered.sources...)
}
