// Package manifest reads and writes the descriptor index shipped with a
// build.
//
// A source root carries META-INF/MANIFEST.MF in JAR manifest syntax. Its
// AtPlug-Component attribute lists descriptor files under ATPLUG-INF/, one
// per plug, as a sorted comma-separated list. Sources are file systems:
// embedded resources registered at init, directories, or zip and tar
// archives found on ATPLUG_PATH.
package manifest
