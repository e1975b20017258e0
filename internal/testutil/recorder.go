package testutil

import (
	"sync"

	"github.com/roach88/atplug/internal/descriptor"
)

// Recorder is an owner that records every callback as "add <impl>" or
// "remove <impl>".
//
// Implements registry.Owner.
type Recorder struct {
	mu     sync.Mutex
	events []string

	// FailAdd, when set, is returned from Add for matching implementations.
	FailAdd func(d descriptor.Descriptor) error
}

// Add records d.
func (r *Recorder) Add(d descriptor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdd != nil {
		if err := r.FailAdd(d); err != nil {
			return err
		}
	}
	r.events = append(r.events, "add "+d.Implementation())
	return nil
}

// Remove records d.
func (r *Recorder) Remove(d descriptor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "remove "+d.Implementation())
	return nil
}

// Events returns the recorded callbacks and clears them.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.events
	r.events = nil
	return ev
}
