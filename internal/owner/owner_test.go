package owner

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/generator"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/registry"
	"github.com/roach88/atplug/internal/testutil"
)

type shape interface{ Name() string }

type square struct{}

func (*square) Name() string { return "square" }

type circle struct{}

func (*circle) Name() string { return "circle" }

var (
	shapeSocket = catalog.TypeNameOf[shape]()
	squareImpl  = catalog.TypeNameOf[square]()
	circleImpl  = catalog.TypeNameOf[circle]()
)

func shapeDesc(impl string, pairs ...descriptor.Property) descriptor.Descriptor {
	return descriptor.New(impl, shapeSocket, descriptor.NewProperties(pairs...))
}

func shapeMetadata(s shape) (descriptor.Properties, error) {
	return descriptor.NewProperties(descriptor.P(KeyID, s.Name())), nil
}

func newRegistry(t *testing.T, descs ...descriptor.Descriptor) *registry.Registry {
	t.Helper()
	c := catalog.New()
	require.NoError(t, catalog.Register(c, func() *square { return &square{} }))
	require.NoError(t, catalog.Register(c, func() *circle { return &circle{} }))
	return registry.New(
		registry.WithCatalog(c),
		registry.WithIDGenerator(testutil.NewSequenceIDs("")),
		registry.WithSources(testutil.ManifestSource("shapes", descs...)),
	)
}

func TestSingletonByID(t *testing.T) {
	reg := newRegistry(t,
		shapeDesc(squareImpl, descriptor.P(KeyID, "square")),
		shapeDesc(circleImpl, descriptor.P(KeyID, "circle")))

	s, err := NewSingletonByID(reg, shapeMetadata)
	require.NoError(t, err)
	assert.Equal(t, shapeSocket, s.Socket())
	assert.Equal(t, []string{"square", "circle"}, s.AvailableIDs())

	sq, ok, err := s.SingletonForID("square")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "square", sq.Name())

	again, _, err := s.SingletonForID("square")
	require.NoError(t, err)
	assert.Same(t, sq, again)

	ci, _, err := s.SingletonForID("circle")
	require.NoError(t, err)
	assert.NotSame(t, sq, ci)

	_, ok, err = s.SingletonForID("triangle")
	require.NoError(t, err)
	assert.False(t, ok)

	d, ok := s.DescriptorForID("circle")
	require.True(t, ok)
	assert.Equal(t, circleImpl, d.Implementation())
}

func TestSingletonByIDConcurrentIdentity(t *testing.T) {
	reg := newRegistry(t, shapeDesc(squareImpl, descriptor.P(KeyID, "square")))
	s := MustSingletonByID(reg, shapeMetadata)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen []shape
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := s.SingletonForID("square")
			assert.NoError(t, err)
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		}()
	}
	wg.Wait()
	for _, v := range seen {
		assert.Same(t, seen[0], v)
	}
}

func TestSingletonByIDMissingID(t *testing.T) {
	reg := newRegistry(t, shapeDesc(squareImpl))

	_, err := NewSingletonByID(reg, shapeMetadata)
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeMissingID))
}

func TestSingletonByIDHarnessEvicts(t *testing.T) {
	reg := newRegistry(t, shapeDesc(squareImpl, descriptor.P(KeyID, "square")))

	var events []string
	s := MustSingletonByID(reg, shapeMetadata,
		OnRegister(func(d descriptor.Descriptor) { events = append(events, "register") }),
		OnRemove(func(d descriptor.Descriptor) { events = append(events, "remove") }))
	assert.Equal(t, []string{"register"}, events)

	before, _, err := s.SingletonForID("square")
	require.NoError(t, err)

	live := &circle{}
	overlay := registry.NewSet()
	overlay.AddInstance(shapeDesc(circleImpl, descriptor.P(KeyID, "square")), live)
	id, err := reg.PushHarness(overlay)
	require.NoError(t, err)

	during, _, err := s.SingletonForID("square")
	require.NoError(t, err)
	assert.Same(t, live, during)

	require.NoError(t, reg.PopHarness(id))
	after, _, err := s.SingletonForID("square")
	require.NoError(t, err)
	assert.Equal(t, "square", after.Name())
	assert.NotSame(t, before, after, "cached instance evicted on remove")

	assert.Equal(t, []string{"register", "remove", "register", "remove", "register"}, events)
}

func TestSingletonByIDProvidesMetadata(t *testing.T) {
	reg := newRegistry(t)
	s := MustSingletonByID(reg, shapeMetadata)

	gen := generator.New(reg.Catalog(), generator.WithOwners(func(socket string) (any, bool) {
		return reg.Owner(socket)
	}))
	d, err := gen.Generate(circleImpl, shapeSocket)
	require.NoError(t, err)
	id, _ := d.Property(KeyID)
	assert.Equal(t, "circle", id)

	fn := s.MetadataFunc()
	_, err = fn("not a shape")
	assert.Error(t, err)

	assert.Nil(t, MustSingletonByID[*square](newRegistry(t), nil).MetadataFunc())
}

func TestSingletonByIDDuplicateOwner(t *testing.T) {
	reg := newRegistry(t)
	MustSingletonByID(reg, shapeMetadata)

	_, err := NewSingletonByID(reg, shapeMetadata)
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeDuplicateOwner))
	assert.Panics(t, func() { MustSingletonByID(reg, shapeMetadata) })
}

func TestEphemeralByDescriptor(t *testing.T) {
	reg := newRegistry(t,
		shapeDesc(squareImpl, descriptor.P(KeyID, "square"), descriptor.P(KeyPriority, "1")),
		shapeDesc(circleImpl, descriptor.P(KeyID, "circle"), descriptor.P(KeyPriority, "5")))

	e, err := NewEphemeralByDescriptor[shape](reg, ParsePriorityKey, shapeMetadata)
	require.NoError(t, err)

	assert.Equal(t, []PriorityKey{{ID: "square", Priority: 1}, {ID: "circle", Priority: 5}}, e.Keys())
	assert.Equal(t, []PriorityKey{{ID: "circle", Priority: 5}},
		e.Filter(func(k PriorityKey) bool { return k.Priority > 2 }))

	all, err := e.InstantiateAll(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "square", all[0].Name())

	again, err := e.InstantiateAll(nil)
	require.NoError(t, err)
	assert.NotSame(t, all[0], again[0], "instances are never cached")

	first, ok, err := e.InstantiateFirst(nil, HighestPriority, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "circle", first.Name())

	var tried []string
	picked, ok, err := e.InstantiateFirst(nil, HighestPriority, func(s shape) bool {
		tried = append(tried, s.Name())
		return s.Name() == "square"
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "square", picked.Name())
	assert.Equal(t, []string{"circle", "square"}, tried)

	_, ok, err = e.InstantiateFirst(func(PriorityKey) bool { return false }, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEphemeralByDescriptorRemove(t *testing.T) {
	sq := shapeDesc(squareImpl, descriptor.P(KeyID, "a"))
	reg := newRegistry(t, sq, shapeDesc(circleImpl, descriptor.P(KeyID, "b")))
	e := MustEphemeralByDescriptor[shape](reg, ParsePriorityKey, nil)

	require.NoError(t, e.Remove(sq))
	assert.Equal(t, []PriorityKey{{ID: "b"}}, e.Keys())

	// Equal keys overwrite.
	require.NoError(t, e.Add(shapeDesc(squareImpl, descriptor.P(KeyID, "b"))))
	all, err := e.InstantiateAll(nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "square", all[0].Name())
}

func TestEphemeralByDescriptorParseError(t *testing.T) {
	reg := newRegistry(t, shapeDesc(squareImpl, descriptor.P(KeyID, "a"), descriptor.P(KeyPriority, "high")))

	_, err := NewEphemeralByDescriptor[shape](reg, ParsePriorityKey, nil)
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeBadKey))
	assert.ErrorContains(t, err, "priority")

	_, err = NewEphemeralByDescriptor[shape, string](newRegistry(t), nil, nil)
	assert.Error(t, err)
}

func TestEphemeralByDescriptorInstantiateError(t *testing.T) {
	reg := newRegistry(t, shapeDesc("example.com/gone.Shape", descriptor.P(KeyID, "gone")))
	e := MustEphemeralByDescriptor[shape](reg, ParsePriorityKey, nil)

	_, err := e.InstantiateAll(nil)
	assert.True(t, plugerr.IsTypeNotFound(err))

	_, _, err = e.InstantiateFirst(nil, nil, nil)
	var nf *plugerr.TypeNotFoundError
	assert.True(t, errors.As(err, &nf))
}
