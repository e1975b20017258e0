// Package scanner finds plug markers in Go source without compiling it.
//
// A plug is a type whose doc comment carries the +atplug:plug directive
// naming the socket it provides. Scan works on the bytes of a single file;
// ScanDir walks module trees, resolves import paths from go.mod, and scans
// files concurrently.
package scanner
