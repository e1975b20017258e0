// Package codegen writes the registration files that make scanned plugs
// constructible by name.
//
// For every package with at least one concrete plug it emits
// zz_generated.atplug.go, whose init function registers a zero-argument
// constructor for each plug type with catalog.Default(). The scanner never
// reads these files.
package codegen
