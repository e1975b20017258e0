package scanner

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/atplug/internal/plugerr"
)

// Marker is the doc comment directive that declares a plug:
//
//	// +atplug:plug=fruit.Fruit
//	type Apple struct{}
const Marker = "+atplug:plug"

// Plug is a marked type found in source.
type Plug struct {
	// Implementation is the canonical name of the marked type.
	Implementation string `json:"implementation"`
	// Socket is the canonical name of the socket named by the marker.
	Socket string `json:"socket"`
	// Abstract is set for interfaces and generic types, which cannot be
	// constructed without arguments.
	Abstract bool   `json:"abstract,omitempty"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Scan parses one Go source file and returns every marked type in it.
//
// The file is parsed, never type-checked or compiled. pkgPath is the import
// path of the package the file belongs to. Malformed source or a malformed
// marker yields a *plugerr.ScanError; a type carrying the marker twice yields
// a *plugerr.ConfigError naming both values.
func Scan(pkgPath, filename string, src []byte) ([]Plug, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, &plugerr.ScanError{File: filename, Message: "unparsable source", Err: err}
	}

	imports := importTable(file)

	var plugs []Plug
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			docs := []*ast.CommentGroup{ts.Doc}
			if len(gd.Specs) == 1 && gd.Doc != ts.Doc {
				docs = append(docs, gd.Doc)
			}

			impl := pkgPath + "." + ts.Name.Name
			values, err := markerValues(docs)
			if err != nil {
				return nil, &plugerr.ScanError{File: filename, Line: fset.Position(ts.Pos()).Line, Message: err.Error()}
			}
			switch len(values) {
			case 0:
				continue
			case 1:
			default:
				return nil, plugerr.NewConfigError(plugerr.CodeDuplicateMarker, []string{impl},
					"%s is marked as a plug more than once: %s and %s", impl, values[0], values[1])
			}

			line := fset.Position(ts.Pos()).Line
			socket, err := resolveSocket(values[0], pkgPath, file.Name.Name, imports)
			if err != nil {
				return nil, &plugerr.ScanError{File: filename, Line: line, Message: err.Error()}
			}
			plugs = append(plugs, Plug{
				Implementation: impl,
				Socket:         socket,
				Abstract:       isAbstract(ts),
				File:           filename,
				Line:           line,
			})
		}
	}
	return plugs, nil
}

func isAbstract(ts *ast.TypeSpec) bool {
	if _, ok := ts.Type.(*ast.InterfaceType); ok {
		return true
	}
	return ts.TypeParams != nil && len(ts.TypeParams.List) > 0
}

type markerError string

func (e markerError) Error() string { return string(e) }

// markerValues returns the value of every marker line in docs.
func markerValues(docs []*ast.CommentGroup) ([]string, error) {
	var values []string
	for _, cg := range docs {
		if cg == nil {
			continue
		}
		for _, c := range cg.List {
			line := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
			if !strings.HasPrefix(line, Marker) {
				continue
			}
			rest := line[len(Marker):]
			if rest != "" && rest[0] != '=' && rest[0] != ' ' {
				continue
			}
			if rest == "" || rest[0] != '=' {
				return nil, markerError("marker " + Marker + " requires a socket value")
			}
			value := strings.TrimSpace(rest[1:])
			if value == "" {
				return nil, markerError("marker " + Marker + " has an empty socket value")
			}
			values = append(values, value)
		}
	}
	return values, nil
}

// importTable maps the local package names of file's imports to their paths.
func importTable(file *ast.File) map[string]string {
	table := make(map[string]string, len(file.Imports))
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := defaultPackageName(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		table[name] = p
	}
	return table
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// defaultPackageName guesses the package name of an import path from its
// last element, skipping a major version suffix ("/v2", ".v3").
func defaultPackageName(importPath string) string {
	elem := path.Base(importPath)
	if majorVersion.MatchString(elem) {
		elem = path.Base(path.Dir(importPath))
	}
	if i := strings.LastIndex(elem, ".v"); i > 0 && majorVersion.MatchString(elem[i+1:]) {
		elem = elem[:i]
	}
	elem = strings.TrimPrefix(elem, "go-")
	return strings.ReplaceAll(elem, "-", "_")
}

// resolveSocket turns a marker value into a canonical type name.
//
// Accepted forms: "Type" in the same package, "pkg.Type" through the file's
// imports or the file's own package name, or "example.com/path/pkg.Type"
// fully qualified.
func resolveSocket(ref, pkgPath, pkgName string, imports map[string]string) (string, error) {
	ref = strings.TrimPrefix(ref, "*")
	dir, last := path.Split(ref)
	dot := strings.LastIndexByte(last, '.')

	if dir != "" {
		if dot <= 0 || dot == len(last)-1 {
			return "", markerError("socket " + ref + " is not of the form <import path>.<Type>")
		}
		return ref, nil
	}
	if dot < 0 {
		if !token.IsIdentifier(ref) {
			return "", markerError("socket " + ref + " is not a valid type name")
		}
		return pkgPath + "." + ref, nil
	}

	qualifier, name := last[:dot], last[dot+1:]
	if !token.IsIdentifier(name) {
		return "", markerError("socket " + ref + " is not a valid type name")
	}
	importPath, ok := imports[qualifier]
	if !ok && qualifier == pkgName {
		importPath, ok = pkgPath, true
	}
	if !ok {
		return "", markerError("socket " + ref + ": package " + qualifier + " is not imported")
	}
	return importPath + "." + name, nil
}
