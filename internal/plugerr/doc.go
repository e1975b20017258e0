// Package plugerr defines the error taxonomy shared by every atplug package.
//
// Scan errors are scoped to one file and collected. Configuration errors are
// fatal and name the offending types. Instantiation errors classify metadata
// failures into a missing dependency or a misbehaving metadata function.
// Manifest parse errors surface when a source stays unreadable after the
// uncached retry.
package plugerr
