package scanner

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/mod/modfile"
)

// Modules resolves directories to Go import paths using the nearest go.mod.
//
// Thread-safety: Modules is safe for concurrent use.
type Modules struct {
	mu    sync.Mutex
	roots map[string]module // dir -> enclosing module
}

type module struct {
	root string
	path string
}

// NewModules creates an empty resolver.
func NewModules() *Modules {
	return &Modules{roots: make(map[string]module)}
}

// PackagePath returns the import path of the package in dir.
func (m *Modules) PackagePath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	mod, err := m.moduleFor(abs)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(mod.root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return mod.path, nil
	}
	return path.Join(mod.path, filepath.ToSlash(rel)), nil
}

func (m *Modules) moduleFor(dir string) (module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var visited []string
	cur := dir
	for {
		if mod, ok := m.roots[cur]; ok {
			m.remember(visited, mod)
			return mod, nil
		}
		visited = append(visited, cur)

		modFile := filepath.Join(cur, "go.mod")
		if data, err := os.ReadFile(modFile); err == nil {
			modPath := modfile.ModulePath(data)
			if modPath == "" {
				return module{}, fmt.Errorf("module path missing in %s", modFile)
			}
			mod := module{root: cur, path: modPath}
			m.remember(visited, mod)
			return mod, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return module{}, fmt.Errorf("go.mod not found above %s", dir)
		}
		cur = parent
	}
}

// remember caches mod for every directory walked. Caller holds m.mu.
func (m *Modules) remember(dirs []string, mod module) {
	for _, d := range dirs {
		m.roots[d] = mod
	}
}
