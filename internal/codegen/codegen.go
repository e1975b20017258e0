package codegen

import (
	"bytes"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/roach88/atplug/internal/scanner"
)

const (
	// FileName is the registration file written into each package.
	FileName = "zz_generated.atplug.go"

	// DefaultCatalogImport is the package the generated code registers with.
	DefaultCatalogImport = "github.com/roach88/atplug/internal/catalog"

	header = "// Code generated by atplug codegen. DO NOT EDIT."
)

// Unit is one package that needs a registration file.
type Unit struct {
	Dir     string
	Package string
	// Types are the concrete plug type names, sorted.
	Types []string
}

// Path returns the file the unit is written to.
func (u Unit) Path() string {
	return filepath.Join(u.Dir, FileName)
}

// Plan groups the concrete plugs by directory. Abstract plugs are skipped;
// generation reports them.
func Plan(plugs []scanner.Plug) ([]Unit, error) {
	byDir := make(map[string]*Unit)
	fset := token.NewFileSet()
	for _, p := range plugs {
		if p.Abstract {
			continue
		}
		dir := filepath.Dir(p.File)
		u, ok := byDir[dir]
		if !ok {
			f, err := parser.ParseFile(fset, p.File, nil, parser.PackageClauseOnly)
			if err != nil {
				return nil, fmt.Errorf("read package clause: %w", err)
			}
			u = &Unit{Dir: dir, Package: f.Name.Name}
			byDir[dir] = u
		}
		u.Types = append(u.Types, typeName(p.Implementation))
	}

	units := make([]Unit, 0, len(byDir))
	for _, u := range byDir {
		slices.Sort(u.Types)
		u.Types = slices.Compact(u.Types)
		units = append(units, *u)
	}
	slices.SortFunc(units, func(a, b Unit) int { return strings.Compare(a.Dir, b.Dir) })
	return units, nil
}

func typeName(implementation string) string {
	return implementation[strings.LastIndex(implementation, ".")+1:]
}

// Generator renders and writes registration files.
type Generator struct {
	// CatalogImport overrides DefaultCatalogImport. The package it names
	// must be called catalog.
	CatalogImport string
	Logger        *slog.Logger
}

func (g *Generator) catalogImport() string {
	if g.CatalogImport != "" {
		return g.CatalogImport
	}
	return DefaultCatalogImport
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Render returns the formatted registration file for u.
func (g *Generator) Render(u Unit) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n\npackage %s\n\n", header, u.Package)
	fmt.Fprintf(&buf, "import \"%s\"\n\n", g.catalogImport())
	buf.WriteString("func init() {\n")
	for _, name := range u.Types {
		fmt.Fprintf(&buf, "catalog.MustRegister(catalog.Default(), func() *%s { return new(%s) })\n", name, name)
	}
	buf.WriteString("}\n")

	out, err := imports.Process(u.Path(), buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", u.Path(), err)
	}
	return out, nil
}

// Write renders u and writes it if the file content differs. It reports
// whether the file changed.
func (g *Generator) Write(u Unit) (bool, error) {
	data, err := g.Render(u)
	if err != nil {
		return false, err
	}
	existing, err := os.ReadFile(u.Path())
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.WriteFile(u.Path(), data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", u.Path(), err)
	}
	g.logger().Info("wrote registration file", "file", u.Path(), "types", len(u.Types))
	return true, nil
}

// WriteAll writes every unit and removes generated files under roots whose
// package no longer declares plugs. It returns the paths it changed.
func (g *Generator) WriteAll(roots []string, units []Unit) ([]string, error) {
	var changed []string
	keep := make(map[string]bool, len(units))
	for _, u := range units {
		keep[u.Path()] = true
		ok, err := g.Write(u)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, u.Path())
		}
	}

	for _, root := range roots {
		stale, err := generatedFiles(root)
		if err != nil {
			return changed, err
		}
		for _, path := range stale {
			if keep[path] {
				continue
			}
			if err := os.Remove(path); err != nil {
				return changed, fmt.Errorf("remove stale %s: %w", path, err)
			}
			g.logger().Info("removed stale registration file", "file", path)
			changed = append(changed, path)
		}
	}
	return changed, nil
}

// generatedFiles lists registration files under root, in the directories
// scanner.SourceFiles visits.
func generatedFiles(root string) ([]string, error) {
	var out []string
	dirs := map[string]bool{}
	files, err := scanner.SourceFiles(root)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		p := filepath.Join(dir, FileName)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out, nil
}
