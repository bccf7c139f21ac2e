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
	"github.com/lokoxe/ghost-tasking/pkg/klog"
	"github.com/lokoxe/ghost-tasking/pkg/memory/frame"
	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
	"github.com/lokoxe/ghost-tasking/pkg/memory/vrange"
)

// freeMappedRange unmaps and dereferences pages physical frames backing
// [start, start+pages*PageSize) in proc, and returns the virtual span to
// proc's range pool. Frames whose reference count reaches zero are
// returned to the physical allocator (spec.md invariant 4); a page with
// no mapping (never touched, or already unmapped) is skipped.
func (k *Tasking) freeMappedRange(proc *Process, start paging.VirtAddr, pages int) {
	for i := 0; i < pages; i++ {
		vaddr := start + paging.VirtAddr(i*PageSize)
		phys, ok := k.paging.VirtualToPhysical(proc.pageDirectory, vaddr)
		if !ok {
			continue
		}
		k.paging.UnmapPage(proc.pageDirectory, vaddr)
		if k.refs.Decrement(phys) == 0 {
			k.frames.MarkFree(phys)
		}
	}
	proc.virtualRangePool.Free(vrange.Addr(start))
}

// unlinkTaskLocked removes t from proc.tasks. proc.lock must be held.
func unlinkTaskLocked(proc *Process, t *Thread) {
	var prev *taskEntry
	for e := proc.tasks; e != nil; e = e.next {
		if e.task == t {
			if prev == nil {
				proc.tasks = e.next
			} else {
				prev.next = e.next
			}
			return
		}
		prev = e
	}
}

// RemoveThread tears a single thread down: it is pulled off its CPU's run
// list, dropped from the global thread index, and its stacks and TLS
// copy (if any) are unmapped and dereferenced (spec.md §4.11). If it was
// its process's last remaining task, the process itself is removed.
func (k *Tasking) RemoveThread(t *Thread) {
	if cpu := t.assignment; cpu != nil {
		cpu.lock.Lock()
		cpu.removeFromListLocked(t)
		if cpu.current == t {
			cpu.current = nil
		}
		cpu.lock.Unlock()
	}

	k.unregister(t.id)

	proc := t.process
	proc.lock.Lock()
	unlinkTaskLocked(proc, t)
	isLast := proc.tasks == nil
	wasMain := proc.main == t
	proc.lock.Unlock()

	t.mu.Lock()
	stack := t.stack
	interruptStack := t.interruptStack
	tls := t.tlsCopy
	t.mu.Unlock()

	back := k.TemporarySwitchTo(nil, proc.pageDirectory)
	k.freeMappedRange(proc, stack.Start, stack.Pages())
	k.freeMappedRange(proc, interruptStack.Start, interruptStack.Pages())
	if tls.End > tls.Start {
		k.freeMappedRange(proc, tls.Start, VirtualRange{Start: tls.Start, End: tls.End}.Pages())
	}
	k.TemporarySwitchBack(nil, back)

	klog.Debugf("tasking: removed thread %d", t.id)

	// If this was the process's last task, its address space is torn
	// down now. Otherwise, if it was the main thread, the rest of the
	// process is marked dead so each owning CPU's cleanup thread reaps
	// the remaining siblings independently (spec.md §4.12's cascade,
	// mirroring taskingRemoveThread's main-thread check).
	if isLast {
		k.RemoveProcess(proc)
	} else if wasMain {
		k.KillProcess(proc)
	}
}

// KillProcess marks every task in proc dead, which lets each CPU's
// cleanup thread reap them independently (spec.md §4.12's asynchronous
// death: killing a process never blocks waiting for its threads to
// actually stop running).
func (k *Tasking) KillProcess(proc *Process) {
	proc.ForEachTask(func(t *Thread) {
		t.MarkDead()
		if cpu := t.assignment; cpu != nil && cpu.Current() == t {
			k.Schedule(cpu)
		}
	})
	klog.Infof("tasking: process %d killed", proc.id)
}

// RemoveProcess releases a process's remaining address-space bookkeeping
// once its last task has already been reaped (spec.md §4.12): every
// still-mapped page is walked and dereferenced, the page directory frame
// itself is freed, and the filesystem's per-process record is dropped.
func (k *Tasking) RemoveProcess(proc *Process) {
	proc.lock.Lock()
	dir := proc.pageDirectory
	pid := proc.id
	proc.lock.Unlock()

	back := k.TemporarySwitchTo(nil, dir)
	k.paging.ForEachMapped(dir, func(vaddr paging.VirtAddr, phys frame.PhysAddr) {
		k.paging.UnmapPage(dir, vaddr)
		if k.refs.Decrement(phys) == 0 {
			k.frames.MarkFree(phys)
		}
	})
	k.TemporarySwitchBack(nil, back)
	k.paging.DestroySpace(dir)
	k.frames.MarkFree(frame.PhysAddr(dir))

	k.fs.ProcessRemove(uint32(pid))

	klog.Debugf("tasking: removed process %d", pid)
}
