// Package testutil provides deterministic fixtures shared by package tests:
// sequential overlay IDs, in-memory plugin sources and a recording owner.
package testutil
