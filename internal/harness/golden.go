package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/registry"
)

// SocketSnapshot lists the active descriptors of one socket.
type SocketSnapshot struct {
	Socket string                  `json:"socket"`
	Plugs  []descriptor.Descriptor `json:"plugs"`
}

// Snapshot renders the registry's active set as indented JSON, sockets in
// first-registration order.
func Snapshot(reg *registry.Registry) ([]byte, error) {
	active, err := reg.Active()
	if err != nil {
		return nil, err
	}
	snap := make([]SocketSnapshot, 0, len(active.Sockets()))
	for _, socket := range active.Sockets() {
		snap = append(snap, SocketSnapshot{Socket: socket, Plugs: active.Descriptors(socket)})
	}
	return json.MarshalIndent(snap, "", "  ")
}

// AssertGolden compares the registry's active set against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertGolden(t *testing.T, name string, reg *registry.Registry) {
	t.Helper()

	data, err := Snapshot(reg)
	if err != nil {
		t.Fatalf("harness: snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
