// Copyright 2015 The Ghost Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package refcount tracks how many page table entries, across every
// address space, point at a given physical frame. A frame is only
// returned to the allocator once its count reaches zero (spec.md
// invariant 4).
package refcount

import (
	"sync"

	"github.com/lokoxe/ghost-tasking/pkg/memory/frame"
)

// Tracker is the page reference tracker referenced by spec.md §6.
type Tracker struct {
	mu     sync.Mutex
	counts map[frame.PhysAddr]uint32
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[frame.PhysAddr]uint32)}
}

// Increment records one more page table reference to p.
func (t *Tracker) Increment(p frame.PhysAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[p]++
}

// Decrement removes one page table reference to p and returns the number
// of references remaining. A frame with no recorded references decrements
// to 0 and stays there; this tolerates the reaper observing a page whose
// directory was already torn down concurrently.
func (t *Tracker) Decrement(p frame.PhysAddr) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.counts[p]
	if n == 0 {
		return 0
	}
	n--
	if n == 0 {
		delete(t.counts, p)
		return 0
	}
	t.counts[p] = n
	return int(n)
}

// Count returns the current reference count of p, for tests.
func (t *Tracker) Count(p frame.PhysAddr) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.counts[p])
}
