package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates overlay IDs "<prefix>-1", "<prefix>-2", ... in order.
//
// Unlike registry.UUIDv7Generator, SequenceIDs can be reset so the same test
// produces the same IDs on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequenceIDs creates a generator. An empty prefix becomes "overlay".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "overlay"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID.
//
// Implements registry.IDGenerator.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence. The next call to Generate returns "<prefix>-1".
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
