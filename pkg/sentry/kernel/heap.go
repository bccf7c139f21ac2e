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

package kernel

import (
	"fmt"

	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
)

// mapFreshPages allocates pages physical frames and maps them at vaddr..
// vaddr+pages*PageSize in proc's address space, incrementing each
// frame's reference count (spec.md invariant 4).
func (k *Tasking) mapFreshPages(proc *Process, vaddr paging.VirtAddr, pages int) error {
	for i := 0; i < pages; i++ {
		frameAddr, err := k.frames.Allocate()
		if err != nil {
			return err
		}
		k.refs.Increment(frameAddr)
		k.paging.MapPage(proc.pageDirectory, vaddr+paging.VirtAddr(i*PageSize), frameAddr, paging.UserTable, paging.UserPage)
	}
	return nil
}

// ExtendHeap grows proc's heap by pages frames and returns the break
// address in effect before the growth — the start of the newly available
// span, matching sbrk(2)'s convention of handing back the old break so the
// caller knows where to start using the memory it just reserved — mapping
// fresh zero frames into the window CreateProcess reserved up front
// (SPEC_FULL.md §6, grounded on the original's syscall_memory.cpp sbrk
// handler). pages <= 0 returns the current break without mapping
// anything, matching sbrk(0)'s query-only use.
func (k *Tasking) ExtendHeap(proc *Process, pages int) (paging.VirtAddr, error) {
	proc.lock.Lock()
	defer proc.lock.Unlock()

	if pages <= 0 {
		return proc.heap.Brk, nil
	}

	limit := proc.heap.Start + paging.VirtAddr(heapReservedPages*PageSize)
	if proc.heap.Brk+paging.VirtAddr(pages*PageSize) > limit {
		return 0, fmt.Errorf("tasking: process %d heap exhausted its reserved window", proc.id)
	}

	back := k.TemporarySwitchTo(nil, proc.pageDirectory)
	defer k.TemporarySwitchBack(nil, back)

	previousBrk := proc.heap.Brk
	for i := 0; i < pages; i++ {
		vaddr := previousBrk + paging.VirtAddr(i*PageSize)
		frameAddr, err := k.frames.Allocate()
		if err != nil {
			return 0, fmt.Errorf("tasking: extending heap for process %d: %w", proc.id, err)
		}
		k.refs.Increment(frameAddr)
		k.paging.MapPage(proc.pageDirectory, vaddr, frameAddr, paging.UserTable, paging.UserPage)
	}

	proc.heap.Brk += paging.VirtAddr(pages * PageSize)
	proc.heap.Pages += uint32(pages)
	return previousBrk, nil
}
