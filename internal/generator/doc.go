// Package generator computes descriptors for scanned plugs.
//
// For each (implementation, socket) pair it checks the implementation is
// concrete and assignable to the socket, resolves the socket's metadata
// function (owner first, catalog declaration second), constructs a throwaway
// instance through the catalog, and records the properties the metadata
// function returns. Failures are classified so that a missing dependency is
// distinguishable from a metadata function that misbehaves.
package generator
