package generator

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/scanner"
)

// MetadataProvider is implemented by socket owners that know how to compute
// descriptor properties for their plugs. A nil result means the owner has
// no metadata function.
type MetadataProvider interface {
	MetadataFunc() catalog.MetadataFunc
}

// OwnerLookup returns the owner registered for a socket.
type OwnerLookup func(socket string) (any, bool)

// Generator turns (implementation, socket) pairs into descriptors.
//
// Thread-safety: Generator is safe for concurrent use; resolved metadata
// functions are cached per socket.
type Generator struct {
	catalog *catalog.Catalog
	owners  OwnerLookup
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]catalog.MetadataFunc
}

// Option configures a Generator.
type Option func(*Generator)

// WithOwners makes owners the first place metadata functions are looked up.
func WithOwners(owners OwnerLookup) Option {
	return func(g *Generator) { g.owners = owners }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// New creates a Generator that instantiates plugs through c.
func New(c *catalog.Catalog, opts ...Option) *Generator {
	g := &Generator{
		catalog: c,
		logger:  slog.Default(),
		cache:   make(map[string]catalog.MetadataFunc),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GeneratePlug generates the descriptor for a scanned plug. The scanner's
// abstract flag is honored even if the catalog was never told.
func (g *Generator) GeneratePlug(p scanner.Plug) (descriptor.Descriptor, error) {
	if p.Abstract {
		return descriptor.Descriptor{}, abstractError(p.Implementation)
	}
	return g.Generate(p.Implementation, p.Socket)
}

// GenerateAll generates descriptors for plugs, sorted by implementation.
// Every failure is reported.
func (g *Generator) GenerateAll(plugs []scanner.Plug) ([]descriptor.Descriptor, error) {
	var (
		out  []descriptor.Descriptor
		errs []error
	)
	for _, p := range plugs {
		d, err := g.GeneratePlug(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b descriptor.Descriptor) int {
		return strings.Compare(a.Implementation(), b.Implementation())
	})
	return out, errors.Join(errs...)
}

// Generate builds the descriptor for impl providing socket.
func (g *Generator) Generate(impl, socket string) (descriptor.Descriptor, error) {
	implType, ok := g.catalog.Lookup(impl)
	if !ok {
		return descriptor.Descriptor{}, unknownType(impl)
	}
	if implType.Kind() == reflect.Interface || g.catalog.IsAbstract(impl) {
		return descriptor.Descriptor{}, abstractError(impl)
	}
	if err := g.checkSupertype(impl, implType, socket); err != nil {
		return descriptor.Descriptor{}, err
	}

	fn, err := g.metadataFor(socket)
	if err != nil {
		return descriptor.Descriptor{}, err
	}

	instance, err := g.catalog.Instantiate(impl)
	if err != nil {
		return descriptor.Descriptor{}, classify(impl, err)
	}
	props, err := callMetadata(fn, instance)
	if err != nil {
		return descriptor.Descriptor{}, classify(impl, err)
	}

	d := descriptor.New(impl, socket, props)
	g.logger.Debug("generated descriptor", "implementation", impl, "socket", socket, "properties", props.Len())
	return d, nil
}

// Describe builds the descriptor for a live instance, without constructing
// anything. Used to install test doubles.
func (g *Generator) Describe(socket string, instance any) (descriptor.Descriptor, error) {
	impl := catalog.NameOf(instance)
	if impl == "" {
		return descriptor.Descriptor{}, plugerr.NewConfigError(plugerr.CodeUnknownType, nil,
			"instance of unnamed type %T cannot be a plug", instance)
	}
	if err := g.checkSupertype(impl, reflect.TypeOf(instance), socket); err != nil {
		return descriptor.Descriptor{}, err
	}
	fn, err := g.metadataFor(socket)
	if err != nil {
		return descriptor.Descriptor{}, err
	}
	props, err := callMetadata(fn, instance)
	if err != nil {
		return descriptor.Descriptor{}, classify(impl, err)
	}
	return descriptor.New(impl, socket, props), nil
}

func (g *Generator) checkSupertype(impl string, implType reflect.Type, socket string) error {
	socketType, ok := g.catalog.Lookup(socket)
	if !ok {
		return unknownType(socket)
	}
	if !catalog.AssignableTo(implType, socketType) {
		return plugerr.NewConfigError(plugerr.CodeNotSupertype, []string{impl, socket},
			"%s is not a supertype of %s", socket, impl)
	}
	return nil
}

// metadataFor resolves the metadata function for socket: first the owner
// registered for it, then the catalog's socket declaration.
func (g *Generator) metadataFor(socket string) (catalog.MetadataFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if fn, ok := g.cache[socket]; ok {
		return fn, nil
	}

	fn, ownerErr := g.fromOwner(socket)
	if ownerErr == nil {
		g.cache[socket] = fn
		return fn, nil
	}
	fn, declErr := g.catalog.Metadata(socket)
	if declErr == nil {
		g.cache[socket] = fn
		return fn, nil
	}

	return nil, &plugerr.ConfigError{
		Code: plugerr.CodeMetadataUnresolved,
		Message: fmt.Sprintf("no metadata function for socket %s: "+
			"register an owner that provides one, or declare the socket with catalog.DeclareSocket", socket),
		Types:  []string{socket},
		Causes: []error{ownerErr, declErr},
	}
}

func (g *Generator) fromOwner(socket string) (catalog.MetadataFunc, error) {
	if g.owners == nil {
		return nil, fmt.Errorf("no owner lookup configured")
	}
	owner, ok := g.owners(socket)
	if !ok {
		return nil, fmt.Errorf("no owner registered for %s", socket)
	}
	mp, ok := owner.(MetadataProvider)
	if !ok {
		return nil, fmt.Errorf("owner %T for %s does not provide metadata", owner, socket)
	}
	fn := mp.MetadataFunc()
	if fn == nil {
		return nil, fmt.Errorf("owner %T for %s has no metadata function", owner, socket)
	}
	return fn, nil
}

// callMetadata invokes fn, converting a panic into an error.
func callMetadata(fn catalog.MetadataFunc, instance any) (props descriptor.Properties, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("metadata panic: %w", rerr)
			} else {
				err = fmt.Errorf("metadata panic: %v", r)
			}
		}
	}()
	return fn(instance)
}

// classify maps a construction or metadata failure to an InstantiationError.
func classify(impl string, err error) error {
	if plugerr.IsConfigError(err, plugerr.CodeNoConstructor) {
		return err
	}
	if nf, ok := catalog.RootCause(err); ok {
		return &plugerr.InstantiationError{
			Kind:           plugerr.MissingDependency,
			Implementation: impl,
			Missing:        nf.Name,
			Err:            err,
		}
	}
	return &plugerr.InstantiationError{
		Kind:           plugerr.BadMetadata,
		Implementation: impl,
		Err:            err,
	}
}

func abstractError(impl string) error {
	return plugerr.NewConfigError(plugerr.CodeAbstractPlug, []string{impl},
		"%s is abstract and cannot be a plug; mark a concrete type instead", impl)
}

func unknownType(name string) error {
	return plugerr.NewConfigError(plugerr.CodeUnknownType, []string{name},
		"%s is not registered in the catalog; run atplug codegen and link its package", name)
}
