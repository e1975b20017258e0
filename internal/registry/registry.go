package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/manifest"
	"github.com/roach88/atplug/internal/plugerr"
)

// PathEnv lists extra directories and archives scanned by Default.
const PathEnv = "ATPLUG_PATH"

// State is the registry lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Scanning
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Scanning:
		return "scanning"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Owner receives descriptors for one socket.
//
// Add and Remove are called with the registry lock held. They may call
// Registry.InstantiatePlug but no other Registry method; any other call
// blocks forever on the lock.
type Owner interface {
	Add(d descriptor.Descriptor) error
	Remove(d descriptor.Descriptor) error
}

type overlay struct {
	id  string
	set *Set
}

// Registry holds every discovered descriptor, the owner of each socket, and
// the stack of harness overlays.
//
// The first call to any method other than InstantiatePlug or Owner reads
// every source exactly once. Owners registered before or after that moment
// observe the same descriptors in the same order.
//
// Thread-safety: Registry is safe for concurrent use. One mutex guards the
// state, owners, production table and overlay stack. The active overlay is
// also published through an atomic pointer so InstantiatePlug never takes
// the lock.
type Registry struct {
	mu         sync.Mutex
	state      State
	initErr    error
	sources    []manifest.Source
	production *Set
	owners     map[string]Owner
	stack      []overlay

	active atomic.Pointer[Set]

	reader  manifest.Reader
	catalog *catalog.Catalog
	ids     IDGenerator
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSources appends manifest sources, scanned in order.
func WithSources(sources ...manifest.Source) Option {
	return func(r *Registry) { r.sources = append(r.sources, sources...) }
}

// WithCatalog sets the catalog used to construct plugs.
// Defaults to catalog.Default().
func WithCatalog(c *catalog.Catalog) Option {
	return func(r *Registry) { r.catalog = c }
}

// WithHeader overrides the manifest attribute listing descriptor files.
func WithHeader(header string) Option {
	return func(r *Registry) { r.reader.Header = header }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithIDGenerator sets the overlay ID generator.
// Defaults to UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(r *Registry) { r.ids = ids }
}

// New creates a registry. Sources are not read until first use.
func New(opts ...Option) *Registry {
	r := &Registry{
		production: NewSet(),
		owners:     make(map[string]Owner),
		catalog:    catalog.Default(),
		ids:        UUIDv7Generator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reader.Logger = r.logger
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry. Its sources are every embedded
// source registered with manifest.Register, including ones registered later,
// followed by the entries of ATPLUG_PATH.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := New(WithSources(manifest.FromPath(os.Getenv(PathEnv), nil)...))
		embedded := manifest.Subscribe(func(src manifest.Source) {
			if err := r.AddSource(src); err != nil {
				r.logger.Error("failed to add plugin source", "source", src.Name(), "error", err)
			}
		})
		r.mu.Lock()
		r.sources = append(embedded, r.sources...)
		r.mu.Unlock()
		defaultRegistry = r
	})
	return defaultRegistry
}

// Catalog returns the catalog plugs are constructed from.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.catalog
}

// State returns the lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ensureReady performs the one-time scan of all sources.
// Caller holds r.mu.
func (r *Registry) ensureReady() error {
	switch r.state {
	case Ready:
		return nil
	case Failed:
		return r.initErr
	}

	r.state = Scanning
	for _, src := range r.sources {
		if err := r.load(src); err != nil {
			return r.fail(src, err)
		}
	}
	r.state = Ready
	r.logger.Info("registry ready",
		"sources", len(r.sources),
		"sockets", len(r.production.Sockets()),
		"descriptors", r.production.Len())
	return nil
}

// load reads src and, when production is the active set, forwards its
// descriptors to owners. The production table only changes if every owner
// accepted its descriptors. Caller holds r.mu.
func (r *Registry) load(src manifest.Source) error {
	descs, err := r.reader.Read(src)
	if err != nil {
		return err
	}
	if len(r.stack) == 0 {
		if err := r.replay(descs); err != nil {
			return err
		}
	}
	for _, d := range descs {
		r.production.Add(d)
	}
	r.logger.Debug("loaded plugin source", "source", src.Name(), "descriptors", len(descs))
	return nil
}

// replay adds descs to their owners in order. If an owner rejects one, the
// descriptors already added are removed again, newest first.
func (r *Registry) replay(descs []descriptor.Descriptor) error {
	for i, d := range descs {
		owner, ok := r.owners[d.Provides()]
		if !ok {
			continue
		}
		if err := owner.Add(d); err != nil {
			errs := []error{err}
			for j := i - 1; j >= 0; j-- {
				if o, ok := r.owners[descs[j].Provides()]; ok {
					errs = append(errs, o.Remove(descs[j]))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

// fail makes err the sticky result of every later call. Caller holds r.mu.
func (r *Registry) fail(src manifest.Source, err error) error {
	r.state = Failed
	r.initErr = err
	r.logger.Error("registry initialization failed", "source", src.Name(), "error", err)
	return err
}

// AddSource appends a source. Before initialization it is simply queued;
// afterwards it is read immediately, and a failure leaves the registry
// Failed exactly as a failure during initialization does.
func (r *Registry) AddSource(src manifest.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = append(r.sources, src)
	switch r.state {
	case Ready:
		if err := r.load(src); err != nil {
			return r.fail(src, err)
		}
		return nil
	case Failed:
		return r.initErr
	default:
		return nil
	}
}

// RegisterOwner installs the owner of socket and replays every descriptor
// of the active set registered for it, in order.
func (r *Registry) RegisterOwner(socket string, owner Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureReady(); err != nil {
		return err
	}
	if _, exists := r.owners[socket]; exists {
		return plugerr.NewConfigError(plugerr.CodeDuplicateOwner, []string{socket},
			"socket %s already has an owner", socket)
	}
	r.owners[socket] = owner
	for _, d := range r.activeSet().Descriptors(socket) {
		if err := owner.Add(d); err != nil {
			delete(r.owners, socket)
			return err
		}
	}
	r.logger.Debug("registered owner", "socket", socket, "owner", fmt.Sprintf("%T", owner))
	return nil
}

// Owner returns the owner registered for socket.
func (r *Registry) Owner(socket string) (Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.owners[socket]
	return o, ok
}

// Descriptors returns the active descriptors for socket.
func (r *Registry) Descriptors(socket string) ([]descriptor.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	return r.activeSet().Descriptors(socket), nil
}

// Sockets returns the sockets of the active set in first-registration order.
func (r *Registry) Sockets() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	return r.activeSet().Sockets(), nil
}

// Active returns a copy of the active set.
func (r *Registry) Active() (*Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	return r.activeSet().Clone(), nil
}

// activeSet returns the top overlay, or production. Caller holds r.mu.
func (r *Registry) activeSet() *Set {
	if n := len(r.stack); n > 0 {
		return r.stack[n-1].set
	}
	return r.production
}

// InstantiatePlug returns the plug described by d as a value assignable to
// socket. A live instance from the active overlay wins over construction.
func (r *Registry) InstantiatePlug(socket string, d descriptor.Descriptor) (any, error) {
	var (
		v   any
		err error
	)
	if set := r.active.Load(); set != nil {
		if inst, ok := set.Instance(d); ok {
			v = inst
		}
	}
	if v == nil {
		v, err = r.catalog.Instantiate(d.Implementation())
		if err != nil {
			return nil, fmt.Errorf("instantiate %s: %w", d.Implementation(), err)
		}
	}
	if socketType, ok := r.catalog.Lookup(socket); ok && !catalog.AssignableTo(reflect.TypeOf(v), socketType) {
		return nil, &plugerr.InternalError{
			Message: fmt.Sprintf("%T produced for %s is not assignable to %s", v, d.Implementation(), socket),
		}
	}
	return v, nil
}

// SetHarness installs set as the only overlay, or with nil restores the
// production set. Installing an overlay while one is active is an error.
func (r *Registry) SetHarness(set *Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureReady(); err != nil {
		return err
	}
	if set != nil {
		if len(r.stack) > 0 {
			return plugerr.NewConfigError(plugerr.CodeHarnessActive, nil,
				"a harness overlay is already active; remove it before installing another")
		}
		_, err := r.push(set)
		return err
	}
	if len(r.stack) == 0 {
		return nil
	}
	prev := r.activeSet()
	r.stack = nil
	r.active.Store(nil)
	err := r.swap(prev, r.production)
	r.logger.Debug("harness cleared")
	return err
}

// PushHarness installs set on top of the overlay stack and returns its ID.
// Owners see remove for every descriptor of the previous active set, then
// add for every descriptor of set.
func (r *Registry) PushHarness(set *Set) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureReady(); err != nil {
		return "", err
	}
	return r.push(set)
}

// push installs set. Caller holds r.mu.
func (r *Registry) push(set *Set) (string, error) {
	if set == nil {
		return "", plugerr.NewConfigError(plugerr.CodeNilHarness, nil,
			"cannot install a nil harness; use SetHarness(nil) to restore production")
	}
	next := set.Clone()
	id := r.ids.Generate()
	prev := r.activeSet()

	r.stack = append(r.stack, overlay{id: id, set: next})
	r.active.Store(next)
	err := r.swap(prev, next)
	r.logger.Debug("harness installed", "overlay", id, "depth", len(r.stack), "descriptors", next.Len())
	return id, err
}

// PopHarness removes the top overlay, which must be id, restoring the one
// beneath it or production.
func (r *Registry) PopHarness(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.stack)
	if n == 0 || r.stack[n-1].id != id {
		return plugerr.NewConfigError(plugerr.CodeHarnessMismatch, nil,
			"overlay %s is not the active harness", id)
	}
	prev := r.stack[n-1].set
	r.stack = r.stack[:n-1]
	next := r.activeSet()
	if len(r.stack) == 0 {
		r.active.Store(nil)
	} else {
		r.active.Store(next)
	}
	err := r.swap(prev, next)
	r.logger.Debug("harness removed", "overlay", id, "depth", len(r.stack))
	return err
}

// HarnessActive reports whether an overlay is installed.
func (r *Registry) HarnessActive() bool {
	return r.active.Load() != nil
}

// swap notifies owners of a transition from prev to next. Every callback
// runs even if an earlier one fails. Caller holds r.mu.
func (r *Registry) swap(prev, next *Set) error {
	var errs []error
	for _, socket := range prev.Sockets() {
		owner, ok := r.owners[socket]
		if !ok {
			continue
		}
		for _, d := range prev.Descriptors(socket) {
			if err := owner.Remove(d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, socket := range next.Sockets() {
		owner, ok := r.owners[socket]
		if !ok {
			continue
		}
		for _, d := range next.Descriptors(socket) {
			if err := owner.Add(d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases sources that hold open resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, src := range r.sources {
		if c, ok := src.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
