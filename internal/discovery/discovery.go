package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/scanner"
	"github.com/roach88/atplug/internal/store"
)

// Options configures an incremental discovery run.
type Options struct {
	// Concurrency bounds the number of files read at once.
	// Zero means GOMAXPROCS.
	Concurrency int
	// Modules resolves package paths. A fresh resolver is used when nil.
	Modules *scanner.Modules
}

// Result is the outcome of a discovery run.
type Result struct {
	// Plugs are every indexed plug under the roots, sorted by implementation.
	Plugs []scanner.Plug
	// Errors holds per-file scan errors. Files that failed are dropped from
	// the index so the next run retries them.
	Errors []error
	// Scanned counts files parsed in this run.
	Scanned int
	// Unchanged counts files skipped because their digest matched.
	Unchanged int
	// Removed counts indexed files that no longer exist.
	Removed int
}

// Run brings the index up to date with the Go files under roots and
// returns the plugs found there.
//
// A file is parsed only if its content digest differs from the one in the
// index. Configuration errors such as duplicate markers abort the run.
func Run(ctx context.Context, idx *store.Store, roots []string, opts Options) (*Result, error) {
	logger := slogcontext.FromCtx(ctx)
	if opts.Modules == nil {
		opts.Modules = scanner.NewModules()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	roots = cleanRoots(roots)
	present := make(map[string]bool)
	var files []string
	for _, root := range roots {
		found, err := scanner.SourceFiles(root)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			present[f] = true
		}
		files = append(files, found...)
	}

	var (
		mu     sync.Mutex
		result = &Result{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scanned, err := refresh(gctx, idx, opts.Modules, file)

			mu.Lock()
			defer mu.Unlock()
			var se *plugerr.ScanError
			switch {
			case errors.As(err, &se):
				logger.Warn("skipping unreadable source", "file", file, "error", err)
				result.Errors = append(result.Errors, err)
				return idx.RemoveFile(gctx, file)
			case err != nil:
				return err
			case scanned:
				result.Scanned++
			default:
				result.Unchanged++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	indexed, err := idx.Files(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range indexed {
		if present[f.Path] || !under(f.Path, roots) {
			continue
		}
		if err := idx.RemoveFile(ctx, f.Path); err != nil {
			return nil, err
		}
		logger.Debug("forgot deleted source", "file", f.Path)
		result.Removed++
	}

	all, err := idx.Plugs(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if under(p.File, roots) {
			result.Plugs = append(result.Plugs, p)
		}
	}
	slices.SortFunc(result.Errors, func(a, b error) int {
		return strings.Compare(a.Error(), b.Error())
	})

	logger.Info("discovery complete",
		"roots", roots,
		"scanned", result.Scanned,
		"unchanged", result.Unchanged,
		"removed", result.Removed,
		"plugs", len(result.Plugs),
		"errors", len(result.Errors))
	return result, nil
}

// refresh rescans file if its digest changed. It reports whether the file
// was parsed.
func refresh(ctx context.Context, idx *store.Store, mods *scanner.Modules, file string) (bool, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return false, &plugerr.ScanError{File: file, Message: "unreadable file", Err: err}
	}
	sum := digest.FromBytes(src)

	prev, ok, err := idx.FileDigest(ctx, file)
	if err != nil {
		return false, err
	}
	if ok && prev == sum {
		return false, nil
	}

	pkgPath, err := mods.PackagePath(filepath.Dir(file))
	if err != nil {
		return false, &plugerr.ScanError{File: file, Message: "cannot resolve package path", Err: err}
	}
	plugs, err := scanner.Scan(pkgPath, file, src)
	if err != nil {
		return false, err
	}
	if err := idx.ReplaceFile(ctx, store.File{Path: file, Digest: sum, Package: pkgPath}, plugs); err != nil {
		return false, err
	}
	return true, nil
}

func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		out = append(out, filepath.Clean(r))
	}
	return out
}

// under reports whether path lies in one of roots.
func under(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || (root == "." && !filepath.IsAbs(path)) ||
			strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
