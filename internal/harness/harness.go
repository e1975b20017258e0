package harness

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/generator"
	"github.com/roach88/atplug/internal/registry"
)

// Harness builds an overlay set and installs it on a registry for the
// duration of a test.
//
// Builder methods record the first error and make every later call a no-op;
// Start reports it.
type Harness struct {
	reg    *registry.Registry
	gen    *generator.Generator
	set    *registry.Set
	logger *slog.Logger
	err    error
}

// Option configures a Harness.
type Option func(*Harness)

// WithGenerator sets the generator used to describe live instances.
// Defaults to one that consults the registry's owners, then its catalog.
func WithGenerator(gen *generator.Generator) Option {
	return func(h *Harness) { h.gen = gen }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// New creates an empty harness for reg.
func New(reg *registry.Registry, opts ...Option) *Harness {
	h := &Harness{
		reg:    reg,
		set:    registry.NewSet(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.gen == nil {
		h.gen = generator.New(reg.Catalog(),
			generator.WithLogger(h.logger),
			generator.WithOwners(func(socket string) (any, bool) {
				return reg.Owner(socket)
			}))
	}
	return h
}

// Add installs plug as a live instance of socket S. Its descriptor is
// computed with the socket's metadata function.
func Add[S any](h *Harness, plug S) *Harness {
	if h.err != nil {
		return h
	}
	socket := catalog.TypeNameOf[S]()
	d, err := h.gen.Describe(socket, plug)
	if err != nil {
		h.err = fmt.Errorf("harness: describe %T as %s: %w", plug, socket, err)
		return h
	}
	h.set.AddInstance(d, plug)
	return h
}

// AddDescriptor adds a descriptor whose plug is constructed through the
// catalog on demand.
func (h *Harness) AddDescriptor(d descriptor.Descriptor) *Harness {
	if h.err == nil {
		h.set.Add(d)
	}
	return h
}

// AddInstance adds d paired with an already constructed plug.
func (h *Harness) AddInstance(d descriptor.Descriptor, plug any) *Harness {
	if h.err == nil {
		h.set.AddInstance(d, plug)
	}
	return h
}

// Err returns the first builder error.
func (h *Harness) Err() error {
	return h.err
}

// Set returns a copy of the overlay built so far.
func (h *Harness) Set() *registry.Set {
	return h.set.Clone()
}

// Start installs the overlay on top of the registry's active set. The
// returned function removes it again. Once it has succeeded, later calls
// are no-ops.
func (h *Harness) Start() (func() error, error) {
	if h.err != nil {
		return nil, h.err
	}
	id, err := h.reg.PushHarness(h.set)
	if err != nil {
		return nil, fmt.Errorf("harness: install overlay: %w", err)
	}
	h.logger.Debug("harness started", "overlay", id, "descriptors", h.set.Len())

	var (
		mu      sync.Mutex
		stopped bool
	)
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return nil
		}
		if err := h.reg.PopHarness(id); err != nil {
			return err
		}
		stopped = true
		h.logger.Debug("harness stopped", "overlay", id)
		return nil
	}, nil
}

// Use starts the harness for the rest of t and removes it during cleanup.
func (h *Harness) Use(t testing.TB) {
	t.Helper()
	stop, err := h.Start()
	if err != nil {
		t.Fatalf("harness: %v", err)
	}
	t.Cleanup(func() {
		if err := stop(); err != nil {
			t.Errorf("harness: remove overlay: %v", err)
		}
	})
}
