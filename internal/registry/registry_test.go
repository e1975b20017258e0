package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/testutil"
)

type greeter interface{ Greet() string }

type hello struct{}

func (*hello) Greet() string { return "hello" }

type hola struct{}

func (*hola) Greet() string { return "hola" }

type silent struct{}

var (
	greeterSocket = catalog.TypeNameOf[greeter]()
	helloImpl     = catalog.TypeNameOf[hello]()
	holaImpl      = catalog.TypeNameOf[hola]()
	silentImpl    = catalog.TypeNameOf[silent]()
)

func greeterDesc(impl, id string) descriptor.Descriptor {
	return descriptor.New(impl, greeterSocket, descriptor.NewProperties(descriptor.P("id", id)))
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	catalog.DeclareType[greeter](c)
	require.NoError(t, catalog.Register(c, func() *hello { return &hello{} }))
	require.NoError(t, catalog.Register(c, func() *hola { return &hola{} }))
	require.NoError(t, catalog.Register(c, func() *silent { return &silent{} }))
	return c
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	base := []Option{
		WithCatalog(testCatalog(t)),
		WithIDGenerator(testutil.NewSequenceIDs("")),
		WithSources(testutil.ManifestSource("production",
			greeterDesc(helloImpl, "hello"),
			greeterDesc(holaImpl, "hola"))),
	}
	return New(append(base, opts...)...)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestRegisterOwnerOrderIndependence(t *testing.T) {
	// Owner registered before discovery triggers it.
	early := newTestRegistry(t)
	assert.Equal(t, Uninitialized, early.State())
	var before testutil.Recorder
	require.NoError(t, early.RegisterOwner(greeterSocket, &before))
	assert.Equal(t, Ready, early.State())

	// Owner registered after discovery has completed.
	late := newTestRegistry(t)
	_, err := late.Sockets()
	require.NoError(t, err)
	var after testutil.Recorder
	require.NoError(t, late.RegisterOwner(greeterSocket, &after))

	want := []string{"add " + helloImpl, "add " + holaImpl}
	assert.Equal(t, want, before.Events())
	assert.Equal(t, want, after.Events())
}

func TestRegisterOwnerDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterOwner(greeterSocket, &testutil.Recorder{}))

	err := r.RegisterOwner(greeterSocket, &testutil.Recorder{})
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeDuplicateOwner))
}

func TestRegisterOwnerRollsBackOnFailure(t *testing.T) {
	r := newTestRegistry(t)
	failing := &testutil.Recorder{FailAdd: func(d descriptor.Descriptor) error {
		if d.Implementation() == holaImpl {
			return errors.New("boom")
		}
		return nil
	}}

	require.Error(t, r.RegisterOwner(greeterSocket, failing))
	_, ok := r.Owner(greeterSocket)
	assert.False(t, ok)

	require.NoError(t, r.RegisterOwner(greeterSocket, &testutil.Recorder{}))
}

func TestDescriptorsAndSockets(t *testing.T) {
	r := newTestRegistry(t)

	sockets, err := r.Sockets()
	require.NoError(t, err)
	assert.Equal(t, []string{greeterSocket}, sockets)

	descs, err := r.Descriptors(greeterSocket)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, helloImpl, descs[0].Implementation())

	none, err := r.Descriptors("example.com/none.Socket")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFailedSourceLeavesRegistryFailed(t *testing.T) {
	r := New(
		WithCatalog(testCatalog(t)),
		WithSources(testutil.BrokenSource("broken")),
	)

	_, err := r.Sockets()
	var mpe *plugerr.ManifestParseError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, Failed, r.State())

	// The failure is sticky.
	err = r.RegisterOwner(greeterSocket, &testutil.Recorder{})
	assert.ErrorAs(t, err, &mpe)
}

func TestAddSourceAfterReady(t *testing.T) {
	r := New(WithCatalog(testCatalog(t)))
	rec := &testutil.Recorder{}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))
	assert.Empty(t, rec.Events())

	require.NoError(t, r.AddSource(testutil.ManifestSource("late", greeterDesc(helloImpl, "hello"))))
	assert.Equal(t, []string{"add " + helloImpl}, rec.Events())
}

func TestAddSourceFailureAfterReadyIsSticky(t *testing.T) {
	r := New(WithCatalog(testCatalog(t)))
	require.NoError(t, r.RegisterOwner(greeterSocket, &testutil.Recorder{}))
	require.Equal(t, Ready, r.State())

	err := r.AddSource(testutil.BrokenSource("broken"))
	var mpe *plugerr.ManifestParseError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, Failed, r.State())

	_, err = r.Descriptors(greeterSocket)
	assert.ErrorAs(t, err, &mpe)
	err = r.RegisterOwner("other.Socket", &testutil.Recorder{})
	assert.ErrorAs(t, err, &mpe)
	err = r.AddSource(testutil.ManifestSource("good", greeterDesc(helloImpl, "hello")))
	assert.ErrorAs(t, err, &mpe)
}

func TestAddSourceRejectedByOwnerIsRolledBack(t *testing.T) {
	r := New(WithCatalog(testCatalog(t)))
	rec := &testutil.Recorder{FailAdd: func(d descriptor.Descriptor) error {
		if d.Implementation() == holaImpl {
			return errors.New("boom")
		}
		return nil
	}}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))

	err := r.AddSource(testutil.ManifestSource("late",
		greeterDesc(helloImpl, "hello"),
		greeterDesc(holaImpl, "hola")))
	require.ErrorContains(t, err, "boom")

	// hello was handed to the owner, then taken back.
	assert.Equal(t, []string{"add " + helloImpl, "remove " + helloImpl}, rec.Events())
	assert.Equal(t, 0, r.production.Len())
	assert.Equal(t, Failed, r.State())
}

func TestAddSourceBeforeReadyIsQueued(t *testing.T) {
	r := New(WithCatalog(testCatalog(t)))
	require.NoError(t, r.AddSource(testutil.ManifestSource("queued", greeterDesc(holaImpl, "hola"))))
	assert.Equal(t, Uninitialized, r.State())

	descs, err := r.Descriptors(greeterSocket)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, holaImpl, descs[0].Implementation())
}

func TestInstantiatePlug(t *testing.T) {
	r := newTestRegistry(t)

	v, err := r.InstantiatePlug(greeterSocket, greeterDesc(holaImpl, "hola"))
	require.NoError(t, err)
	assert.Equal(t, "hola", v.(greeter).Greet())

	_, err = r.InstantiatePlug(greeterSocket, greeterDesc("example.com/gone.Type", "gone"))
	assert.True(t, plugerr.IsTypeNotFound(err))

	_, err = r.InstantiatePlug(greeterSocket, greeterDesc(silentImpl, "silent"))
	var internal *plugerr.InternalError
	assert.ErrorAs(t, err, &internal)
}

func TestHarnessPushPopIsReversible(t *testing.T) {
	r := newTestRegistry(t)
	rec := &testutil.Recorder{}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))
	rec.Events()

	overlay := NewSet()
	live := &hola{}
	overlay.AddInstance(greeterDesc(holaImpl, "only"), live)

	id, err := r.PushHarness(overlay)
	require.NoError(t, err)
	assert.Equal(t, "overlay-1", id)
	assert.True(t, r.HarnessActive())
	assert.Equal(t, []string{
		"remove " + helloImpl,
		"remove " + holaImpl,
		"add " + holaImpl,
	}, rec.Events())

	descs, err := r.Descriptors(greeterSocket)
	require.NoError(t, err)
	require.Len(t, descs, 1)

	v, err := r.InstantiatePlug(greeterSocket, descs[0])
	require.NoError(t, err)
	assert.Same(t, live, v)

	require.NoError(t, r.PopHarness(id))
	assert.False(t, r.HarnessActive())
	assert.Equal(t, []string{
		"remove " + holaImpl,
		"add " + helloImpl,
		"add " + holaImpl,
	}, rec.Events())
}

func TestHarnessCopiesSet(t *testing.T) {
	r := newTestRegistry(t)
	overlay := NewSet()
	overlay.Add(greeterDesc(helloImpl, "a"))

	_, err := r.PushHarness(overlay)
	require.NoError(t, err)
	overlay.Add(greeterDesc(holaImpl, "b"))

	descs, err := r.Descriptors(greeterSocket)
	require.NoError(t, err)
	assert.Len(t, descs, 1)
}

func TestHarnessStack(t *testing.T) {
	r := newTestRegistry(t)

	first := NewSet()
	first.Add(greeterDesc(helloImpl, "first"))
	second := NewSet()
	second.Add(greeterDesc(holaImpl, "second"))

	id1, err := r.PushHarness(first)
	require.NoError(t, err)
	id2, err := r.PushHarness(second)
	require.NoError(t, err)

	err = r.PopHarness(id1)
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeHarnessMismatch))

	require.NoError(t, r.PopHarness(id2))
	descs, err := r.Descriptors(greeterSocket)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	id, _ := descs[0].Property("id")
	assert.Equal(t, "first", id)

	require.NoError(t, r.PopHarness(id1))
	descs, err = r.Descriptors(greeterSocket)
	require.NoError(t, err)
	assert.Len(t, descs, 2)
}

func TestSetHarness(t *testing.T) {
	r := newTestRegistry(t)
	rec := &testutil.Recorder{}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))

	// Clearing without an overlay is a no-op.
	require.NoError(t, r.SetHarness(nil))

	require.NoError(t, r.SetHarness(NewSet()))
	assert.True(t, r.HarnessActive())

	err := r.SetHarness(NewSet())
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeHarnessActive))

	rec.Events()
	require.NoError(t, r.SetHarness(nil))
	assert.False(t, r.HarnessActive())
	assert.Equal(t, []string{"add " + helloImpl, "add " + holaImpl}, rec.Events())
}

func TestNilHarnessRejected(t *testing.T) {
	r := newTestRegistry(t)
	rec := &testutil.Recorder{}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))
	rec.Events()

	_, err := r.PushHarness(nil)
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeNilHarness))
	assert.False(t, r.HarnessActive())
	assert.Empty(t, rec.Events())

	descs, err := r.Descriptors(greeterSocket)
	require.NoError(t, err)
	assert.Len(t, descs, 2)
}

func TestOwnerRegisteredDuringOverlaySeesOverlay(t *testing.T) {
	r := newTestRegistry(t)
	overlay := NewSet()
	overlay.Add(greeterDesc(holaImpl, "only"))
	id, err := r.PushHarness(overlay)
	require.NoError(t, err)

	rec := &testutil.Recorder{}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))
	assert.Equal(t, []string{"add " + holaImpl}, rec.Events())

	require.NoError(t, r.PopHarness(id))
	assert.Equal(t, []string{
		"remove " + holaImpl,
		"add " + helloImpl,
		"add " + holaImpl,
	}, rec.Events())
}

func TestLateSourceHiddenWhileOverlayActive(t *testing.T) {
	r := newTestRegistry(t)
	rec := &testutil.Recorder{}
	require.NoError(t, r.RegisterOwner(greeterSocket, rec))
	id, err := r.PushHarness(NewSet())
	require.NoError(t, err)
	rec.Events()

	require.NoError(t, r.AddSource(testutil.ManifestSource("late", greeterDesc(helloImpl, "late"))))
	assert.Empty(t, rec.Events())

	require.NoError(t, r.PopHarness(id))
	assert.Len(t, rec.Events(), 3)
}

func TestConcurrentInstantiate(t *testing.T) {
	r := newTestRegistry(t)
	d := greeterDesc(helloImpl, "hello")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				id, err := r.PushHarness(NewSet())
				if err == nil {
					_ = r.PopHarness(id)
				}
				return
			}
			v, err := r.InstantiatePlug(greeterSocket, d)
			assert.NoError(t, err)
			assert.Equal(t, "hello", v.(greeter).Greet(), fmt.Sprint(i))
		}(i)
	}
	wg.Wait()
}

func TestSetOperations(t *testing.T) {
	s := NewSet()
	a := greeterDesc(helloImpl, "a")
	s.AddInstance(a, &hello{})
	s.Add(descriptor.New(holaImpl, "example.com/other.Socket", descriptor.Properties{}))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{greeterSocket, "example.com/other.Socket"}, s.Sockets())
	assert.Len(t, s.All(), 2)

	_, ok := s.Instance(a)
	assert.True(t, ok)

	c := s.Clone()
	c.Add(greeterDesc(holaImpl, "b"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, c.Len())
}
