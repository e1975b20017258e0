// Package descriptor defines the persisted form of a plug.
//
// A Descriptor names a concrete implementation type, the socket type it
// provides, and an ordered set of string properties produced by the socket's
// metadata function. The on-disk encoding is pretty-printed JSON with a fixed
// field order and is byte-for-byte stable across round trips. Identity is the
// SHA-256 digest of the RFC 8785 canonical form with domain separation, which
// ignores property order.
package descriptor
