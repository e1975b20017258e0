// Package fruit is a small socket with two plugs, kept as a working
// reference for the generated registration file and published resources.
//
// Regenerate the checked-in files from the repository root with:
//
//	go run ./cmd/atplug-example --config internal/example/fruit codegen
//	go run ./cmd/atplug-example --config internal/example/fruit generate
package fruit

import (
	"embed"
	"io/fs"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/manifest"
	"github.com/roach88/atplug/internal/owner"
	"github.com/roach88/atplug/internal/registry"
)

// Fruit is the socket.
type Fruit interface {
	Name() string
	Color() string
}

// +atplug:plug=Fruit
type Apple struct{}

func (*Apple) Name() string  { return "Apple" }
func (*Apple) Color() string { return "red" }

// +atplug:plug=Fruit
type Orange struct{}

func (*Orange) Name() string  { return "Orange" }
func (*Orange) Color() string { return "orange" }

// Socket owns every Fruit plug by id.
var Socket = owner.MustSingletonByID[Fruit](registry.Default(), metadata)

func metadata(f Fruit) (descriptor.Properties, error) {
	return descriptor.NewProperties(descriptor.P(owner.KeyID, f.Name())), nil
}

//go:embed resources
var resources embed.FS

func init() {
	sub, err := fs.Sub(resources, "resources")
	if err != nil {
		panic(err)
	}
	manifest.Register("github.com/roach88/atplug/internal/example/fruit", sub)
}
