package catalog

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
)

// Factory constructs a new plug instance.
type Factory func() any

// MetadataFunc computes descriptor properties for a plug instance.
type MetadataFunc func(plug any) (descriptor.Properties, error)

type entry struct {
	typ     reflect.Type
	factory Factory
}

type socketDecl struct {
	typ      reflect.Type
	metadata MetadataFunc
}

// Catalog maps canonical type names to zero-argument constructors and
// socket declarations. It stands in for reflective class loading: code that
// must be instantiable by name registers itself, usually from a generated
// init function.
//
// Thread-safety: Catalog is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	types   map[string]*entry
	sockets map[string]*socketDecl
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		types:   make(map[string]*entry),
		sockets: make(map[string]*socketDecl),
	}
}

var defaultCatalog = New()

// Default returns the process-wide catalog that generated registration code
// populates.
func Default() *Catalog {
	return defaultCatalog
}

// Register records newFn as the zero-argument constructor for P.
// Registering a second constructor for the same name is an error.
func Register[P any](c *Catalog, newFn func() P) error {
	t := reflect.TypeFor[P]()
	name := TypeName(t)
	if name == "" {
		return fmt.Errorf("catalog: cannot register unnamed type %v", t)
	}
	if newFn == nil {
		return fmt.Errorf("catalog: nil constructor for %s", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.types[name]; ok && existing.factory != nil {
		return plugerr.NewConfigError(plugerr.CodeDuplicateRegistration, []string{name},
			"constructor for %s is already registered", name)
	}
	c.types[name] = &entry{typ: t, factory: func() any { return newFn() }}
	return nil
}

// MustRegister is like Register but panics on error.
// Intended for init functions.
func MustRegister[P any](c *Catalog, newFn func() P) {
	if err := Register(c, newFn); err != nil {
		panic(err)
	}
}

// DeclareType records T as a known type without a constructor. It is
// idempotent and never replaces a registered constructor.
func DeclareType[T any](c *Catalog) string {
	t := reflect.TypeFor[T]()
	name := TypeName(t)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.types[name]; !ok {
		c.types[name] = &entry{typ: t}
	}
	return name
}

// DeclareSocket records S as a socket whose metadata is computed by metadata.
func DeclareSocket[S any](c *Catalog, metadata func(S) (descriptor.Properties, error)) error {
	if metadata == nil {
		return fmt.Errorf("catalog: nil metadata function for %s", TypeNameOf[S]())
	}
	name := DeclareType[S](c)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sockets[name]; ok {
		return plugerr.NewConfigError(plugerr.CodeDuplicateRegistration, []string{name},
			"socket %s is already declared", name)
	}
	c.sockets[name] = &socketDecl{
		typ: reflect.TypeFor[S](),
		metadata: func(plug any) (descriptor.Properties, error) {
			s, ok := plug.(S)
			if !ok {
				return descriptor.Properties{}, fmt.Errorf("%T does not implement %s", plug, name)
			}
			return metadata(s)
		},
	}
	return nil
}

// MustDeclareSocket is like DeclareSocket but panics on error.
func MustDeclareSocket[S any](c *Catalog, metadata func(S) (descriptor.Properties, error)) {
	if err := DeclareSocket(c, metadata); err != nil {
		panic(err)
	}
}

// Lookup returns the reflect type registered under name.
func (c *Catalog) Lookup(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.types[name]
	if !ok {
		return nil, false
	}
	return e.typ, true
}

// IsAbstract reports whether name is an interface type or a known type
// without a constructor.
func (c *Catalog) IsAbstract(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.types[name]
	if !ok {
		return false
	}
	return e.factory == nil || e.typ.Kind() == reflect.Interface
}

// Instantiate calls the zero-argument constructor registered for name.
// A panicking constructor is reported as an error.
func (c *Catalog) Instantiate(name string) (v any, err error) {
	c.mu.RLock()
	e, ok := c.types[name]
	var siblings []string
	if ok && e.factory == nil {
		siblings = c.constructorsIn(packageOf(name))
	}
	c.mu.RUnlock()

	if !ok {
		return nil, &plugerr.TypeNotFoundError{Name: name}
	}
	if e.factory == nil {
		return nil, plugerr.NewConfigError(plugerr.CodeNoConstructor, []string{name},
			"%s has no zero-argument constructor; constructors registered in %s: [%s]",
			name, packageOf(name), strings.Join(siblings, ", "))
	}

	defer func() {
		if r := recover(); r != nil {
			if rerr, isErr := r.(error); isErr {
				err = fmt.Errorf("construct %s: panic: %w", name, rerr)
			} else {
				err = fmt.Errorf("construct %s: panic: %v", name, r)
			}
		}
	}()
	return e.factory(), nil
}

// Metadata returns the metadata function declared for socket.
func (c *Catalog) Metadata(socket string) (MetadataFunc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	decl, ok := c.sockets[socket]
	if !ok {
		return nil, fmt.Errorf("no socket declaration for %s in catalog", socket)
	}
	return decl.metadata, nil
}

// Assignable reports whether values of impl can be used as socket.
// Both names must be known to the catalog.
func (c *Catalog) Assignable(impl, socket string) (bool, error) {
	implType, ok := c.Lookup(impl)
	if !ok {
		return false, &plugerr.TypeNotFoundError{Name: impl}
	}
	socketType, ok := c.Lookup(socket)
	if !ok {
		return false, &plugerr.TypeNotFoundError{Name: socket}
	}
	return AssignableTo(implType, socketType), nil
}

// AssignableTo reports whether v can be stored in a variable of type socket.
// Struct types are compared through their pointer, which carries the full
// method set.
func AssignableTo(v, socket reflect.Type) bool {
	if v.AssignableTo(socket) {
		return true
	}
	if socket.Kind() == reflect.Interface && v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
		return reflect.PointerTo(v).Implements(socket)
	}
	return false
}

// Constructors returns the names of all constructible types, sorted.
func (c *Catalog) Constructors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.constructorsIn("")
}

// constructorsIn lists constructible type names in pkg, or in every package
// when pkg is empty. Caller holds c.mu.
func (c *Catalog) constructorsIn(pkg string) []string {
	var names []string
	for name, e := range c.types {
		if e.factory == nil {
			continue
		}
		if pkg != "" && packageOf(name) != pkg {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// packageOf returns the import path part of a canonical type name.
func packageOf(name string) string {
	dir, base := path.Split(name)
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		return dir + base[:i]
	}
	return strings.TrimSuffix(dir, "/")
}

// RootCause returns the innermost TypeNotFoundError in err's tree, if any.
func RootCause(err error) (*plugerr.TypeNotFoundError, bool) {
	var nf *plugerr.TypeNotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}
