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

// Package vrange sub-allocates virtual address ranges within an address
// space (spec.md §6's "virtual address-range pool"). Free ranges are kept
// in a github.com/google/btree ordered by start address so that Allocate
// is a lowest-address-first walk, the same first-fit policy the original
// g_address_range_pool implements over a sorted linked list.
package vrange

import (
	"fmt"
	"sync"

	"github.com/google/btree"
)

// Addr is a virtual address within the owning process's space.
type Addr uint32

// Flags tag an allocation with ownership semantics the caller cares about;
// the pool itself is agnostic to them but records them for Free-time
// bookkeeping by callers (e.g. TLS provisioning tags its range as
// physical-owner, spec.md §4.6).
type Flags uint32

const (
	// FlagPhysicalOwner marks a range whose backing frames are owned
	// (and must be released) by whoever allocated it.
	FlagPhysicalOwner Flags = 1 << 0
)

const degree = 32

type freeRange struct {
	start, end Addr
}

func (r *freeRange) Less(than btree.Item) bool {
	return r.start < than.(*freeRange).start
}

// Pool is a sub-allocator over one or more address ranges.
type Pool struct {
	mu       sync.Mutex
	pageSize Addr
	free     *btree.BTree
	alloc    map[Addr]allocation
}

type allocation struct {
	end   Addr
	flags Flags
}

// New creates an empty pool. pageSize must be the architectural page size.
func New(pageSize uint32) *Pool {
	return &Pool{
		pageSize: Addr(pageSize),
		free:     btree.New(degree),
		alloc:    make(map[Addr]allocation),
	}
}

// AddRange extends the pool with [start, end) as free space.
func (p *Pool) AddRange(start, end Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertFreeLocked(start, end)
}

// Allocate reserves the lowest-addressed free span of at least pages
// contiguous pages and returns its start address.
func (p *Pool) Allocate(pages int, flags Flags) (Addr, error) {
	if pages <= 0 {
		pages = 1
	}
	need := Addr(pages) * p.pageSize

	p.mu.Lock()
	defer p.mu.Unlock()

	var found *freeRange
	p.free.Ascend(func(item btree.Item) bool {
		r := item.(*freeRange)
		if r.end-r.start >= need {
			found = r
			return false
		}
		return true
	})
	if found == nil {
		return 0, fmt.Errorf("vrange: no free span of %d pages available", pages)
	}

	p.free.Delete(found)
	start := found.start
	if found.start+need < found.end {
		p.free.ReplaceOrInsert(&freeRange{start: found.start + need, end: found.end})
	}
	p.alloc[start] = allocation{end: start + need, flags: flags}
	return start, nil
}

// Free releases a previously allocated range back to the pool.
func (p *Pool) Free(start Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.alloc[start]
	if !ok {
		return
	}
	delete(p.alloc, start)
	p.insertFreeLocked(start, a.end)
}

// insertFreeLocked adds [start, end) to the free tree, coalescing with an
// immediately adjacent predecessor or successor span if present.
func (p *Pool) insertFreeLocked(start, end Addr) {
	// Merge with predecessor ending exactly at start.
	var pred *freeRange
	p.free.DescendLessOrEqual(&freeRange{start: start}, func(item btree.Item) bool {
		r := item.(*freeRange)
		if r.end == start {
			pred = r
		}
		return false
	})
	if pred != nil {
		p.free.Delete(pred)
		start = pred.start
	}

	// Merge with successor starting exactly at end.
	var succ *freeRange
	p.free.AscendGreaterOrEqual(&freeRange{start: end}, func(item btree.Item) bool {
		r := item.(*freeRange)
		if r.start == end {
			succ = r
		}
		return false
	})
	if succ != nil {
		p.free.Delete(succ)
		end = succ.end
	}

	p.free.ReplaceOrInsert(&freeRange{start: start, end: end})
}
