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
	"github.com/lokoxe/ghost-tasking/pkg/memory/vrange"
)

func pagesFor(size uint32) int {
	if size == 0 {
		return 0
	}
	return int((size + PageSize - 1) / PageSize)
}

// PrepareThreadLocalStorage provisions t's TLS block from its process's
// TLS template (spec.md §4.6): a fresh, physically owned virtual range of
// pagesFor(TotalSize) pages is reserved, fresh frames are mapped into it,
// and t.tlsCopy records the window so Restore can point the fixed GS
// selector at it on every dispatch. Frames in this simulator carry no
// byte content, so no template bytes are copied into the block and no
// user-thread descriptor is written; UserThreadObject only records the
// address just past TotalSize bytes. A process with no TLS template
// installed (proc.tlsMaster.TotalSize == 0) leaves t.tlsCopy zeroed,
// which is valid: such threads never read through GS.
func (k *Tasking) PrepareThreadLocalStorage(t *Thread) error {
	proc := t.process

	proc.lock.Lock()
	master := proc.tlsMaster
	proc.lock.Unlock()

	if master.TotalSize == 0 {
		return nil
	}

	pages := pagesFor(master.TotalSize)
	if pages == 0 {
		return nil
	}

	start, err := proc.virtualRangePool.Allocate(pages, vrange.FlagPhysicalOwner)
	if err != nil {
		return fmt.Errorf("tasking: allocating TLS window for thread %d: %w", t.id, err)
	}

	back := k.TemporarySwitchTo(nil, proc.pageDirectory)
	defer k.TemporarySwitchBack(nil, back)

	for i := 0; i < pages; i++ {
		vaddr := paging.VirtAddr(start) + paging.VirtAddr(i*PageSize)
		frameAddr, err := k.frames.Allocate()
		if err != nil {
			return fmt.Errorf("tasking: allocating TLS frame for thread %d: %w", t.id, err)
		}
		k.refs.Increment(frameAddr)
		k.paging.MapPage(proc.pageDirectory, vaddr, frameAddr, paging.UserTable, paging.UserPage)
	}

	end := paging.VirtAddr(start) + paging.VirtAddr(master.TotalSize)

	t.mu.Lock()
	t.tlsCopy = TLSCopy{
		Start: paging.VirtAddr(start),
		End:   end,
		// The user-thread object sits immediately past the copied
		// template, at the address GS:0 resolves to once loaded
		// (spec.md §6's fixed GS selector 0x30).
		UserThreadObject: end,
	}
	t.mu.Unlock()

	return nil
}
