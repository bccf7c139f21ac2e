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

	"github.com/lokoxe/ghost-tasking/pkg/klog"
	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
	"github.com/lokoxe/ghost-tasking/pkg/memory/vrange"
	"github.com/lokoxe/ghost-tasking/pkg/wait"
)

func selectors(level SecurityLevel) (cs, ss uint32) {
	if level == SecurityLevelKernel {
		return GDTKernelCode | Ring0, GDTKernelData | Ring0
	}
	return GDTUserCode | Ring3, GDTUserData | Ring3
}

func (k *Tasking) initialState(level SecurityLevel, eip, esp paging.VirtAddr) *ProcessorState {
	cs, ss := selectors(level)
	eflags := uint32(EFLAGSInterruptFlag)
	if level != SecurityLevelApplication {
		eflags |= EFLAGSIOPL
	}
	return &ProcessorState{
		EIP:    uint32(eip),
		ESP:    uint32(esp),
		CS:     cs,
		SS:     ss,
		DS:     ss,
		ES:     ss,
		FS:     ss,
		GS:     ss,
		EFLAGS: eflags,
	}
}

// CreateThread allocates a new thread inside proc: a kernel stack (and, for
// non-kernel threads, an interrupt stack) carved out of proc's virtual
// range pool, an initial register
// state pointed at entry, and — for non-kernel threads whose process has
// installed a TLS template — a fresh TLS copy (spec.md §4.3). The first
// thread created in a process becomes its main thread and lends it its
// process ID (invariant 5).
func (k *Tasking) CreateThread(proc *Process, level SecurityLevel, typ ThreadType, entry paging.VirtAddr) (*Thread, error) {
	id := k.allocateID()

	back := k.TemporarySwitchTo(nil, proc.pageDirectory)
	defer k.TemporarySwitchBack(nil, back)

	stackStart, err := proc.virtualRangePool.Allocate(int(k.cfg.KernelStackPages), vrange.FlagPhysicalOwner)
	if err != nil {
		return nil, fmt.Errorf("tasking: allocating stack for thread %d: %w", id, err)
	}
	stackEnd := stackStart + vrange.Addr(k.cfg.KernelStackPages)*vrange.Addr(PageSize)
	if err := k.mapFreshPages(proc, paging.VirtAddr(stackStart), int(k.cfg.KernelStackPages)); err != nil {
		return nil, fmt.Errorf("tasking: mapping stack for thread %d: %w", id, err)
	}

	// Only non-kernel (user) threads get a separate ring-0 interrupt
	// stack (spec.md §3, §4.3): kernel threads already run at ring 0, so
	// there is no ring-3-to-ring-0 transition for the TSS to land on.
	var intrStart, intrEnd vrange.Addr
	if level != SecurityLevelKernel {
		intrStart, err = proc.virtualRangePool.Allocate(int(k.cfg.InterruptStackPages), vrange.FlagPhysicalOwner)
		if err != nil {
			return nil, fmt.Errorf("tasking: allocating interrupt stack for thread %d: %w", id, err)
		}
		intrEnd = intrStart + vrange.Addr(k.cfg.InterruptStackPages)*vrange.Addr(PageSize)
		if err := k.mapFreshPages(proc, paging.VirtAddr(intrStart), int(k.cfg.InterruptStackPages)); err != nil {
			return nil, fmt.Errorf("tasking: mapping interrupt stack for thread %d: %w", id, err)
		}
	}

	t := &Thread{
		id:            id,
		process:       proc,
		securityLevel: level,
		typ:           typ,
		stack:         VirtualRange{Start: paging.VirtAddr(stackStart), End: paging.VirtAddr(stackEnd)},
		interruptStack: VirtualRange{
			Start: paging.VirtAddr(intrStart),
			End:   paging.VirtAddr(intrEnd),
		},
		resumeCh: make(chan struct{}, 1),
	}
	t.setStatus(ThreadRunning)
	t.state = k.initialState(level, entry, paging.VirtAddr(stackEnd))

	if level != SecurityLevelKernel {
		proc.lock.Lock()
		hasMaster := proc.tlsMaster.TotalSize > 0
		proc.lock.Unlock()
		if hasMaster {
			if err := k.PrepareThreadLocalStorage(t); err != nil {
				return nil, err
			}
		}
	}

	proc.lock.Lock()
	becameMain := proc.main == nil
	if becameMain {
		proc.main = t
		proc.id = t.id
	}
	proc.tasks = &taskEntry{task: t, next: proc.tasks}
	proc.lock.Unlock()

	k.register(t)
	// The filesystem's per-process record is created once, when the
	// thread that becomes main attaches (spec.md §4.3, tasking.cpp's
	// taskingCreateThread), not on every subsequent thread in the same
	// process.
	if becameMain {
		k.fs.ProcessCreate(uint32(proc.ID()))
	}

	klog.Debugf("tasking: created thread %d in process %d (level=%s type=%d)", t.id, proc.ID(), level, typ)
	return t, nil
}

// createKernelThread creates a ThreadTypeIdle/ThreadTypeCleanup thread
// whose code lives in a Go function rather than user-mode instructions;
// body runs in its own goroutine once the thread is first dispatched.
func (k *Tasking) createKernelThread(proc *Process, typ ThreadType, body func(*Tasking, *CPU, *Thread)) (*Thread, error) {
	t, err := k.CreateThread(proc, SecurityLevelKernel, typ, 0)
	if err != nil {
		return nil, err
	}
	t.body = body
	return t, nil
}

// Assign places t on cpu's run list, making it eligible for dispatch
// (spec.md §4.4). A thread not yet assigned to any CPU is never selected
// by Schedule. Assign is idempotent: if t is already on cpu's list, the
// scan finds its entry and Assign leaves the list untouched rather than
// linking a second entry for it (spec.md §4.4, invariant 1).
func (k *Tasking) Assign(t *Thread, cpu *CPU) {
	t.assignment = cpu
	cpu.lock.Lock()
	if !cpu.containsLocked(t) {
		cpu.addToListLocked(t)
	}
	cpu.lock.Unlock()
}

func notifyResume(t *Thread) {
	select {
	case t.resumeCh <- struct{}{}:
	default:
	}
}

// KernelThreadYield cooperatively gives up cpu to whatever Schedule picks
// next, then blocks the calling goroutine until this thread is dispatched
// again (spec.md §4.9). Kernel-thread bodies call this directly instead
// of raising the software interrupt (int 0x81) a real user-mode thread
// would use, since there is no ring transition to simulate for code that
// already runs as a plain Go function.
func (k *Tasking) KernelThreadYield(cpu *CPU, t *Thread) {
	k.Schedule(cpu)
	if cpu.Current() == t {
		return
	}
	<-t.resumeCh
}

// KernelThreadExit marks t dead and schedules it away permanently; like
// its originating call, it never returns to the caller (spec.md §4.9).
func (k *Tasking) KernelThreadExit(cpu *CPU, t *Thread) {
	t.MarkDead()
	k.Schedule(cpu)
	select {}
}

func idleBody(k *Tasking, cpu *CPU, t *Thread) {
	for {
		wait.Sleep(t, 1)
		k.KernelThreadYield(cpu, t)
	}
}

func cleanupBody(k *Tasking, cpu *CPU, t *Thread) {
	for {
		wait.Sleep(t, 10)

		cpu.lock.Lock()
		var dead []*Thread
		for e := cpu.list; e != nil; e = e.next {
			if e.task.status() == ThreadDead {
				dead = append(dead, e.task)
			}
		}
		cpu.lock.Unlock()

		for _, d := range dead {
			k.RemoveThread(d)
		}

		k.KernelThreadYield(cpu, t)
	}
}
