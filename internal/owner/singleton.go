package owner

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/registry"
)

// SingletonByID owns a socket whose plugs are identified by their "id"
// property and instantiated at most once each.
//
// Thread-safety: SingletonByID is safe for concurrent use. SingletonForID
// checks and populates the instance cache in a single critical section, so
// concurrent callers for the same id observe the same instance.
type SingletonByID[T any] struct {
	base[T]

	mu          sync.Mutex
	descriptors *orderedmap.OrderedMap[string, descriptor.Descriptor]
	instances   map[string]T
}

// NewSingletonByID creates the owner for socket T and registers it with reg.
// Every descriptor already discovered for T is replayed before it returns.
// metadata may be nil if plugs of T are described by a socket declaration in
// the catalog instead.
func NewSingletonByID[T any](reg *registry.Registry, metadata func(T) (descriptor.Properties, error), opts ...Option) (*SingletonByID[T], error) {
	s := &SingletonByID[T]{
		base:        newBase(reg, metadata, opts),
		descriptors: orderedmap.New[string, descriptor.Descriptor](),
		instances:   make(map[string]T),
	}
	if err := reg.RegisterOwner(s.socket, s); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSingletonByID is like NewSingletonByID but panics on error.
// Intended for package-level socket variables.
func MustSingletonByID[T any](reg *registry.Registry, metadata func(T) (descriptor.Properties, error), opts ...Option) *SingletonByID[T] {
	s, err := NewSingletonByID(reg, metadata, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add records d under its id. A later descriptor with the same id replaces
// the earlier one.
func (s *SingletonByID[T]) Add(d descriptor.Descriptor) error {
	id, ok := d.Property(KeyID)
	if !ok {
		return plugerr.NewConfigError(plugerr.CodeMissingID, []string{d.Implementation()},
			"%s plugs must have an %q property, %s has %s", s.socket, KeyID, d.Implementation(), d.Properties())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.descriptors.Set(id, d)
	s.registered(d)
	s.opts.logger.Debug("plug registered", "socket", s.socket, "id", id, "implementation", d.Implementation())
	return nil
}

// Remove drops d and any cached instance for its id.
func (s *SingletonByID[T]) Remove(d descriptor.Descriptor) error {
	id, ok := d.Property(KeyID)
	if !ok {
		return plugerr.NewConfigError(plugerr.CodeMissingID, []string{d.Implementation()},
			"%s plugs must have an %q property", s.socket, KeyID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.descriptors.Delete(id)
	delete(s.instances, id)
	s.removed(d)
	s.opts.logger.Debug("plug removed", "socket", s.socket, "id", id)
	return nil
}

// AvailableIDs returns the registered ids in registration order.
func (s *SingletonByID[T]) AvailableIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, s.descriptors.Len())
	for pair := s.descriptors.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// DescriptorForID returns the descriptor registered under id.
func (s *SingletonByID[T]) DescriptorForID(id string) (descriptor.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.descriptors.Get(id)
}

// SingletonForID returns the instance for id, creating it on first use.
// The second result is false if no plug has that id.
func (s *SingletonByID[T]) SingletonForID(id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if inst, ok := s.instances[id]; ok {
		return inst, true, nil
	}
	d, ok := s.descriptors.Get(id)
	if !ok {
		return zero, false, nil
	}
	inst, err := s.instantiate(d)
	if err != nil {
		return zero, true, fmt.Errorf("%s %q: %w", s.socket, id, err)
	}
	s.instances[id] = inst
	return inst, true, nil
}
