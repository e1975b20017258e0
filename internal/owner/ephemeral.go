package owner

import (
	"fmt"
	"slices"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/registry"
)

// EphemeralByDescriptor owns a socket whose plugs are selected by a key
// parsed from their descriptor and instantiated fresh on every request.
//
// Thread-safety: EphemeralByDescriptor is safe for concurrent use. Queries
// copy the matching descriptors under the lock and construct plugs after
// releasing it.
type EphemeralByDescriptor[T any, K comparable] struct {
	base[T]
	parse func(descriptor.Descriptor) (K, error)

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[K, descriptor.Descriptor]
}

// NewEphemeralByDescriptor creates the owner for socket T and registers it
// with reg. parse turns each descriptor into its key.
func NewEphemeralByDescriptor[T any, K comparable](
	reg *registry.Registry,
	parse func(descriptor.Descriptor) (K, error),
	metadata func(T) (descriptor.Properties, error),
	opts ...Option,
) (*EphemeralByDescriptor[T, K], error) {
	if parse == nil {
		return nil, fmt.Errorf("owner: nil key parser for %s", catalog.TypeNameOf[T]())
	}
	e := &EphemeralByDescriptor[T, K]{
		base:    newBase(reg, metadata, opts),
		parse:   parse,
		entries: orderedmap.New[K, descriptor.Descriptor](),
	}
	if err := reg.RegisterOwner(e.socket, e); err != nil {
		return nil, err
	}
	return e, nil
}

// MustEphemeralByDescriptor is like NewEphemeralByDescriptor but panics on
// error.
func MustEphemeralByDescriptor[T any, K comparable](
	reg *registry.Registry,
	parse func(descriptor.Descriptor) (K, error),
	metadata func(T) (descriptor.Properties, error),
	opts ...Option,
) *EphemeralByDescriptor[T, K] {
	e, err := NewEphemeralByDescriptor(reg, parse, metadata, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Add parses d and stores it under its key, replacing an equal key.
func (e *EphemeralByDescriptor[T, K]) Add(d descriptor.Descriptor) error {
	key, err := e.parse(d)
	if err != nil {
		ce := plugerr.NewConfigError(plugerr.CodeBadKey, []string{d.Implementation()},
			"%s: cannot parse key of %s", e.socket, d.Implementation())
		ce.Causes = []error{err}
		return ce
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries.Set(key, d)
	e.registered(d)
	return nil
}

// Remove drops every entry whose descriptor equals d.
func (e *EphemeralByDescriptor[T, K]) Remove(d descriptor.Descriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stale []K
	for pair := e.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Equal(d) {
			stale = append(stale, pair.Key)
		}
	}
	for _, k := range stale {
		e.entries.Delete(k)
		e.removed(d)
	}
	return nil
}

// Keys returns every key in registration order.
func (e *EphemeralByDescriptor[T, K]) Keys() []K {
	return e.Filter(nil)
}

// Filter returns the keys accepted by pred in registration order. A nil
// pred accepts every key.
func (e *EphemeralByDescriptor[T, K]) Filter(pred func(K) bool) []K {
	e.mu.Lock()
	defer e.mu.Unlock()

	var keys []K
	for pair := e.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pred == nil || pred(pair.Key) {
			keys = append(keys, pair.Key)
		}
	}
	return keys
}

type entry[K comparable] struct {
	key K
	d   descriptor.Descriptor
}

func (e *EphemeralByDescriptor[T, K]) snapshot(pred func(K) bool) []entry[K] {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []entry[K]
	for pair := e.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pred == nil || pred(pair.Key) {
			out = append(out, entry[K]{key: pair.Key, d: pair.Value})
		}
	}
	return out
}

// InstantiateAll returns a new instance of every plug whose key is accepted
// by pred, in registration order.
func (e *EphemeralByDescriptor[T, K]) InstantiateAll(pred func(K) bool) ([]T, error) {
	matches := e.snapshot(pred)
	out := make([]T, 0, len(matches))
	for _, m := range matches {
		inst, err := e.instantiate(m.d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.socket, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// InstantiateFirst filters keys with pred, sorts them with cmp, then
// instantiates plugs in that order until accept returns true for one.
// A nil cmp keeps registration order and a nil accept takes the first
// plug. The second result is false if no plug was accepted.
func (e *EphemeralByDescriptor[T, K]) InstantiateFirst(pred func(K) bool, cmp func(a, b K) int, accept func(T) bool) (T, bool, error) {
	var zero T
	matches := e.snapshot(pred)
	if cmp != nil {
		slices.SortStableFunc(matches, func(a, b entry[K]) int { return cmp(a.key, b.key) })
	}
	for _, m := range matches {
		inst, err := e.instantiate(m.d)
		if err != nil {
			return zero, false, fmt.Errorf("%s: %w", e.socket, err)
		}
		if accept == nil || accept(inst) {
			return inst, true, nil
		}
	}
	return zero, false, nil
}
