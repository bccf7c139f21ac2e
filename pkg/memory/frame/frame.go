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

// Package frame simulates the kernel's physical frame allocator. The real
// kernel hands out 4 KiB frames from a bitmap built over the memory map
// reported by the bootloader; here the bitmap covers a fixed-size region
// sized for the simulator, which is all a userspace stand-in needs.
package frame

import (
	"fmt"
	"sync"
)

// PageSize is the architectural page size (spec.md §6).
const PageSize = 4096

// PhysAddr is a physical address, always page-aligned when it identifies a
// frame.
type PhysAddr uint32

// Allocator hands out and reclaims physical frames from a bitmap.
type Allocator struct {
	mu    sync.Mutex
	base  PhysAddr
	bits  []bool
	count int
	used  int
}

// NewAllocator creates an allocator covering pages frames starting at base.
func NewAllocator(base PhysAddr, pages int) *Allocator {
	return &Allocator{
		base:  base,
		bits:  make([]bool, pages),
		count: pages,
	}
}

// Allocate returns a fresh zero-refcount frame, or an error if the
// simulated region is exhausted.
func (a *Allocator) Allocate() (PhysAddr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, used := range a.bits {
		if !used {
			a.bits[i] = true
			a.used++
			return a.base + PhysAddr(i*PageSize), nil
		}
	}
	return 0, fmt.Errorf("frame: out of physical memory (%d/%d frames used)", a.used, a.count)
}

// MarkFree returns a frame to the pool. Freeing an already-free or
// out-of-range frame is a no-op, matching the original bitmap allocator's
// tolerance of redundant frees during teardown races.
func (a *Allocator) MarkFree(p PhysAddr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p < a.base {
		return
	}
	idx := int(p-a.base) / PageSize
	if idx < 0 || idx >= a.count {
		return
	}
	if a.bits[idx] {
		a.bits[idx] = false
		a.used--
	}
}

// Used reports the number of frames currently allocated, for tests.
func (a *Allocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}
