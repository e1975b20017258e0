// Package discovery finds plug markers incrementally.
//
// Run walks the source roots, hashes every eligible Go file and parses only
// the files whose digest differs from the one recorded in the store. Deleted
// files are dropped from the index. The plugs returned are always the full
// set under the roots, identical to what a fresh scanner.ScanDir would report.
package discovery
