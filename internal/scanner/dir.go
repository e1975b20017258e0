package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/atplug/internal/plugerr"
)

// Options configures a directory scan.
type Options struct {
	// Concurrency bounds the number of files parsed at once.
	// Zero means GOMAXPROCS.
	Concurrency int
	// Modules resolves package paths. A fresh resolver is used when nil.
	Modules *Modules
}

// Result is the outcome of a directory scan.
type Result struct {
	// Plugs are sorted by implementation name.
	Plugs []Plug
	// Errors holds per-file scan errors; they never stop other files.
	Errors []error
	// Files is the number of Go files scanned.
	Files int
}

// ScanDir scans every eligible Go file under roots.
//
// Per-file *plugerr.ScanError values are collected in Result.Errors.
// Configuration errors abort the scan.
func ScanDir(ctx context.Context, roots []string, opts Options) (*Result, error) {
	logger := slogcontext.FromCtx(ctx)
	if opts.Modules == nil {
		opts.Modules = NewModules()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	var files []string
	for _, root := range roots {
		found, err := SourceFiles(root)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	var (
		mu     sync.Mutex
		result = &Result{Files: len(files)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plugs, err := ScanFile(file, opts.Modules)

			mu.Lock()
			defer mu.Unlock()
			var se *plugerr.ScanError
			switch {
			case errors.As(err, &se):
				logger.Warn("skipping unreadable source", "file", file, "error", err)
				result.Errors = append(result.Errors, err)
				return nil
			case err != nil:
				return err
			}
			result.Plugs = append(result.Plugs, plugs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(result.Plugs, func(a, b Plug) int {
		return strings.Compare(a.Implementation, b.Implementation)
	})
	slices.SortFunc(result.Errors, func(a, b error) int {
		return strings.Compare(a.Error(), b.Error())
	})
	logger.Debug("scan complete", "roots", roots, "files", result.Files, "plugs", len(result.Plugs), "errors", len(result.Errors))
	return result, nil
}

// ScanFile reads and scans one file, resolving its package path with mods.
func ScanFile(file string, mods *Modules) ([]Plug, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, &plugerr.ScanError{File: file, Message: "unreadable file", Err: err}
	}
	pkgPath, err := mods.PackagePath(filepath.Dir(file))
	if err != nil {
		return nil, &plugerr.ScanError{File: file, Message: "cannot resolve package path", Err: err}
	}
	return Scan(pkgPath, file, src)
}

// SourceFiles lists the Go files under root that may declare plugs, in
// lexical order. Tests, generated registration files, testdata, vendor and
// hidden directories are skipped.
func SourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && (name == "testdata" || name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if Eligible(name) {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// Eligible reports whether a file name is scanned for markers.
func Eligible(name string) bool {
	return strings.HasSuffix(name, ".go") &&
		!strings.HasSuffix(name, "_test.go") &&
		!strings.HasPrefix(name, "zz_generated")
}
