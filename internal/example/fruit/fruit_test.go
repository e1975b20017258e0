package fruit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/atplug/internal/codegen"
	"github.com/roach88/atplug/internal/generator"
	"github.com/roach88/atplug/internal/harness"
	"github.com/roach88/atplug/internal/manifest"
	"github.com/roach88/atplug/internal/registry"
	"github.com/roach88/atplug/internal/scanner"
)

func TestSocket(t *testing.T) {
	assert.Equal(t, []string{"Apple", "Orange"}, Socket.AvailableIDs())

	apple, ok, err := Socket.SingletonForID("Apple")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "red", apple.Color())

	again, _, err := Socket.SingletonForID("Apple")
	require.NoError(t, err)
	assert.Same(t, apple, again)

	orange, ok, err := Socket.SingletonForID("Orange")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "orange", orange.Color())

	_, ok, err = Socket.SingletonForID("Banana")
	require.NoError(t, err)
	assert.False(t, ok)
}

type kiwi struct{}

func (*kiwi) Name() string  { return "Kiwi" }
func (*kiwi) Color() string { return "green" }

func TestHarness(t *testing.T) {
	t.Run("overlay", func(t *testing.T) {
		harness.Add[Fruit](harness.New(registry.Default()), &kiwi{}).Use(t)

		assert.Equal(t, []string{"Kiwi"}, Socket.AvailableIDs())
		f, ok, err := Socket.SingletonForID("Kiwi")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "green", f.Color())
	})

	assert.Equal(t, []string{"Apple", "Orange"}, Socket.AvailableIDs())
}

func scan(t *testing.T) []scanner.Plug {
	t.Helper()
	res, err := scanner.ScanDir(context.Background(), []string{"."}, scanner.Options{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Plugs, 2)
	return res.Plugs
}

func TestRegistrationFileUpToDate(t *testing.T) {
	units, err := codegen.Plan(scan(t))
	require.NoError(t, err)
	require.Len(t, units, 1)

	want, err := (&codegen.Generator{}).Render(units[0])
	require.NoError(t, err)
	got, err := os.ReadFile(codegen.FileName)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestResourcesUpToDate(t *testing.T) {
	reg := registry.Default()
	gen := generator.New(reg.Catalog(),
		generator.WithOwners(func(socket string) (any, bool) { return reg.Owner(socket) }))
	descs, err := gen.GenerateAll(scan(t))
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = (&manifest.Publisher{Dir: dir}).Publish(descs)
	require.NoError(t, err)

	for _, rel := range []string{
		manifest.ManifestPath,
		manifest.DescriptorPath(descs[0].Implementation()),
		manifest.DescriptorPath(descs[1].Implementation()),
	} {
		want, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join("resources", filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, string(want), string(got), rel)
	}

	upToDate, err := (&manifest.Publisher{Dir: "resources"}).UpToDate()
	require.NoError(t, err)
	assert.True(t, upToDate)
}
