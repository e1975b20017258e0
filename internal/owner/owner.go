package owner

import (
	"fmt"
	"log/slog"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/registry"
)

// KeyID is the property SingletonByID indexes plugs by.
const KeyID = "id"

// Hook observes a descriptor entering or leaving an owner. Hooks run with
// the owner lock held and must not call back into the owner.
type Hook func(d descriptor.Descriptor)

type options struct {
	onRegister Hook
	onRemove   Hook
	logger     *slog.Logger
}

// Option configures an owner.
type Option func(*options)

// OnRegister sets a hook called after each descriptor is added.
func OnRegister(h Hook) Option {
	return func(o *options) { o.onRegister = h }
}

// OnRemove sets a hook called after each descriptor is removed.
func OnRemove(h Hook) Option {
	return func(o *options) { o.onRemove = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// base holds what every owner strategy shares: its socket, the registry it
// instantiates through, and the optional metadata function.
type base[T any] struct {
	reg      *registry.Registry
	socket   string
	metadata func(T) (descriptor.Properties, error)
	opts     options
}

func newBase[T any](reg *registry.Registry, metadata func(T) (descriptor.Properties, error), opts []Option) base[T] {
	b := base[T]{
		reg:      reg,
		socket:   catalog.DeclareType[T](reg.Catalog()),
		metadata: metadata,
		opts:     options{logger: slog.Default()},
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b
}

// Socket returns the canonical name of the socket type.
func (b *base[T]) Socket() string {
	return b.socket
}

// MetadataFunc exposes the owner's metadata function to the generator.
// It returns nil when the owner was created without one.
func (b *base[T]) MetadataFunc() catalog.MetadataFunc {
	if b.metadata == nil {
		return nil
	}
	return func(plug any) (descriptor.Properties, error) {
		p, ok := plug.(T)
		if !ok {
			return descriptor.Properties{}, fmt.Errorf("%T does not implement %s", plug, b.socket)
		}
		return b.metadata(p)
	}
}

// instantiate delegates construction to the registry so harness instances
// are honored.
func (b *base[T]) instantiate(d descriptor.Descriptor) (T, error) {
	var zero T
	v, err := b.reg.InstantiatePlug(b.socket, d)
	if err != nil {
		return zero, err
	}
	p, ok := v.(T)
	if !ok {
		return zero, &plugerr.InternalError{
			Message: fmt.Sprintf("%T produced for %s is not a %s", v, d.Implementation(), b.socket),
		}
	}
	return p, nil
}

func (b *base[T]) registered(d descriptor.Descriptor) {
	if b.opts.onRegister != nil {
		b.opts.onRegister(d)
	}
}

func (b *base[T]) removed(d descriptor.Descriptor) {
	if b.opts.onRemove != nil {
		b.opts.onRemove(d)
	}
}
