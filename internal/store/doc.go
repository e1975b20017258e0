// Package store provides the SQLite-backed discovery index.
//
// The index remembers, for every scanned Go source file, the digest of its
// contents and the plug markers found in it:
//   - files: path, content digest, package import path
//   - plugs: implementation, socket, abstract flag, position
//
// Discovery consults the digests to rescan only changed files, so repeated
// runs over a large module touch almost nothing.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a file cascades to its plugs
//
// All queries order by a text column with COLLATE BINARY so results are
// identical across runs.
package store
