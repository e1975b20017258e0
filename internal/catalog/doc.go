// Package catalog is the explicit factory table used to instantiate plugs
// by name.
//
// Type names are canonical: "<import path>.<Type>". Generated registration
// files call MustRegister from init so that every marked plug in a linked
// package is constructible. Sockets are declared with DeclareSocket, which
// also attaches the metadata function used at generation time when no owner
// provides one.
package catalog
