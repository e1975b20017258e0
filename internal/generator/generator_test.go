package generator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atplug/internal/catalog"
	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/scanner"
)

const pkg = "github.com/roach88/atplug/internal/generator"

type tool interface{ Name() string }

type hammer struct{}

func (*hammer) Name() string { return "hammer" }

type saw struct{}

func (*saw) Name() string { return "" }

type rock struct{}

type broken struct{}

func (*broken) Name() string { return "broken" }

func nameMetadata(t tool) (descriptor.Properties, error) {
	if t.Name() == "" {
		return descriptor.Properties{}, errors.New("nameless tool")
	}
	return descriptor.NewProperties(descriptor.P("id", t.Name())), nil
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	catalog.DeclareType[tool](c)
	catalog.MustRegister(c, func() *hammer { return &hammer{} })
	catalog.MustRegister(c, func() *saw { return &saw{} })
	catalog.MustRegister(c, func() *rock { return &rock{} })
	return c
}

type fakeOwner struct{ fn catalog.MetadataFunc }

func (o fakeOwner) MetadataFunc() catalog.MetadataFunc { return o.fn }

func ownerLookup(owners map[string]any) OwnerLookup {
	return func(socket string) (any, bool) {
		o, ok := owners[socket]
		return o, ok
	}
}

func TestGenerateFromSocketDeclaration(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))

	d, err := New(c).Generate(pkg+".hammer", pkg+".tool")
	require.NoError(t, err)
	assert.Equal(t, pkg+".hammer", d.Implementation())
	assert.Equal(t, pkg+".tool", d.Provides())
	id, _ := d.Property("id")
	assert.Equal(t, "hammer", id)
}

func TestGenerateFromOwner(t *testing.T) {
	c := newCatalog(t)
	owner := fakeOwner{fn: func(plug any) (descriptor.Properties, error) {
		return descriptor.NewProperties(descriptor.P("id", "owned")), nil
	}}
	g := New(c, WithOwners(ownerLookup(map[string]any{pkg + ".tool": owner})))

	d, err := g.Generate(pkg+".hammer", pkg+".tool")
	require.NoError(t, err)
	id, _ := d.Property("id")
	assert.Equal(t, "owned", id)
}

func TestGenerateOwnerWithoutMetadataFallsBack(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))
	g := New(c, WithOwners(ownerLookup(map[string]any{pkg + ".tool": fakeOwner{}})))

	d, err := g.Generate(pkg+".hammer", pkg+".tool")
	require.NoError(t, err)
	id, _ := d.Property("id")
	assert.Equal(t, "hammer", id)
}

func TestGenerateMetadataUnresolved(t *testing.T) {
	c := newCatalog(t)
	g := New(c, WithOwners(ownerLookup(map[string]any{pkg + ".tool": struct{}{}})))

	_, err := g.Generate(pkg+".hammer", pkg+".tool")
	require.True(t, plugerr.IsConfigError(err, plugerr.CodeMetadataUnresolved))

	var ce *plugerr.ConfigError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Causes, 2, "both strategies are reported")
	assert.Contains(t, ce.Causes[0].Error(), "does not provide metadata")
	assert.Contains(t, ce.Causes[1].Error(), "no socket declaration")
}

func TestGenerateAbstract(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))
	g := New(c)

	_, err := g.Generate(pkg+".tool", pkg+".tool")
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeAbstractPlug))

	_, err = g.GeneratePlug(scanner.Plug{Implementation: pkg + ".hammer", Socket: pkg + ".tool", Abstract: true})
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeAbstractPlug))
}

func TestGenerateNotSupertype(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))

	_, err := New(c).Generate(pkg+".rock", pkg+".tool")
	require.True(t, plugerr.IsConfigError(err, plugerr.CodeNotSupertype))
	assert.Contains(t, err.Error(), pkg+".rock")
	assert.Contains(t, err.Error(), pkg+".tool")
}

func TestGenerateUnknownTypes(t *testing.T) {
	c := newCatalog(t)
	g := New(c)

	_, err := g.Generate(pkg+".missing", pkg+".tool")
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeUnknownType))

	_, err = g.Generate(pkg+".hammer", pkg+".missing")
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeUnknownType))
}

func TestGenerateBadMetadata(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))

	_, err := New(c).Generate(pkg+".saw", pkg+".tool")
	assert.Equal(t, plugerr.BadMetadata, plugerr.InstantiationKindOf(err))
	assert.Contains(t, err.Error(), pkg+".saw")
}

func TestGenerateMissingDependency(t *testing.T) {
	c := newCatalog(t)
	catalog.MustRegister(c, func() *broken {
		if _, err := c.Instantiate("example.com/gone.Dep"); err != nil {
			panic(err)
		}
		return &broken{}
	})
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))

	_, err := New(c).Generate(pkg+".broken", pkg+".tool")
	require.Equal(t, plugerr.MissingDependency, plugerr.InstantiationKindOf(err))

	var ie *plugerr.InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "example.com/gone.Dep", ie.Missing)
}

func TestGenerateMetadataPanic(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, func(tool) (descriptor.Properties, error) {
		panic("kaboom")
	}))

	_, err := New(c).Generate(pkg+".hammer", pkg+".tool")
	assert.Equal(t, plugerr.BadMetadata, plugerr.InstantiationKindOf(err))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestMetadataCachedPerSocket(t *testing.T) {
	c := newCatalog(t)
	calls := 0
	lookup := func(socket string) (any, bool) {
		calls++
		return fakeOwner{fn: func(any) (descriptor.Properties, error) {
			return descriptor.NewProperties(), nil
		}}, true
	}
	g := New(c, WithOwners(lookup))

	_, err := g.Generate(pkg+".hammer", pkg+".tool")
	require.NoError(t, err)
	_, err = g.Generate(pkg+".hammer", pkg+".tool")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGenerateAll(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))

	descs, err := New(c).GenerateAll([]scanner.Plug{
		{Implementation: pkg + ".saw", Socket: pkg + ".tool"},
		{Implementation: pkg + ".hammer", Socket: pkg + ".tool"},
	})
	require.Error(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, pkg+".hammer", descs[0].Implementation())
}

func TestDescribe(t *testing.T) {
	c := newCatalog(t)
	require.NoError(t, catalog.DeclareSocket(c, nameMetadata))
	g := New(c)

	d, err := g.Describe(pkg+".tool", &hammer{})
	require.NoError(t, err)
	assert.Equal(t, pkg+".hammer", d.Implementation())

	_, err = g.Describe(pkg+".tool", &rock{})
	assert.True(t, plugerr.IsConfigError(err, plugerr.CodeNotSupertype))
}
