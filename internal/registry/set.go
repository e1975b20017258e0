package registry

import (
	"slices"

	"github.com/roach88/atplug/internal/descriptor"
)

// Set is a socket registration table: descriptors grouped by the socket they
// provide, in insertion order, optionally paired with live instances.
//
// The production table and every harness overlay are Sets. A Set handed to
// the registry is copied, so later changes by the caller are not observed.
type Set struct {
	order     []string
	bySocket  map[string][]descriptor.Descriptor
	instances map[string]any // descriptor key -> instance
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{
		bySocket:  make(map[string][]descriptor.Descriptor),
		instances: make(map[string]any),
	}
}

// Add appends d under its socket.
func (s *Set) Add(d descriptor.Descriptor) {
	socket := d.Provides()
	if _, ok := s.bySocket[socket]; !ok {
		s.order = append(s.order, socket)
	}
	s.bySocket[socket] = append(s.bySocket[socket], d)
}

// AddInstance appends d and pairs it with a live instance, returned by
// Registry.InstantiatePlug instead of a fresh construction.
func (s *Set) AddInstance(d descriptor.Descriptor, instance any) {
	s.Add(d)
	s.instances[d.Key()] = instance
}

// Instance returns the live instance paired with d.
func (s *Set) Instance(d descriptor.Descriptor) (any, bool) {
	if len(s.instances) == 0 {
		return nil, false
	}
	v, ok := s.instances[d.Key()]
	return v, ok
}

// Descriptors returns the descriptors registered under socket.
func (s *Set) Descriptors(socket string) []descriptor.Descriptor {
	return slices.Clone(s.bySocket[socket])
}

// Sockets returns socket names in first-registration order.
func (s *Set) Sockets() []string {
	return slices.Clone(s.order)
}

// All returns every descriptor, grouped by socket in first-registration order.
func (s *Set) All() []descriptor.Descriptor {
	var all []descriptor.Descriptor
	for _, socket := range s.order {
		all = append(all, s.bySocket[socket]...)
	}
	return all
}

// Len returns the number of descriptors.
func (s *Set) Len() int {
	n := 0
	for _, descs := range s.bySocket {
		n += len(descs)
	}
	return n
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := NewSet()
	c.order = slices.Clone(s.order)
	for socket, descs := range s.bySocket {
		c.bySocket[socket] = slices.Clone(descs)
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	return c
}
