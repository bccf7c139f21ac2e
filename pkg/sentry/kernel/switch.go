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

import "github.com/lokoxe/ghost-tasking/pkg/klog"

// Store copies the processor state pushed by an interrupt's entry
// trampoline onto cpu's current thread's control block (spec.md §4.7
// step 1). Real hardware leaves this state sitting on the kernel stack;
// the simulator copies it out since nothing reuses that memory between
// calls.
func (k *Tasking) Store(cpu *CPU, state *ProcessorState) {
	cpu.lock.Lock()
	cur := cpu.current
	cpu.lock.Unlock()
	if cur == nil {
		return
	}
	cur.mu.Lock()
	s := *state
	cur.state = &s
	cur.mu.Unlock()
}

// Restore reprograms cpu's segmentation state for the thread Schedule
// just chose and returns the processor state the trampoline should load
// back into registers before returning from the interrupt (spec.md §4.7
// steps 2-3). It reloads the thread's address space unless an override
// is in effect (address-space borrowing, spec.md §4.5), and reprograms
// the GDT/TSS so the next ring-3-to-ring-0 transition lands on this
// thread's interrupt stack (its kernel stack, for a kernel thread that
// has none) and the next TLS access resolves to its copy.
func (k *Tasking) Restore(cpu *CPU) *ProcessorState {
	cpu.lock.Lock()
	cur := cpu.current
	cpu.lock.Unlock()
	if cur == nil {
		klog.Panicf("tasking: cpu %d has no current thread to restore", cpu.id)
	}

	cur.mu.Lock()
	defer cur.mu.Unlock()

	dir := cur.process.pageDirectory
	if cur.overridePageDirectory != 0 {
		dir = cur.overridePageDirectory
	}
	k.paging.SwitchToSpace(cpu.id, dir)

	// TSS.ESP0 is where the next ring-3-to-ring-0 transition lands
	// (spec.md §4.7): user threads land on their dedicated interrupt
	// stack; kernel threads, which never cross rings, have none
	// allocated (thread_lifecycle.go) and fall back to their ordinary
	// kernel stack.
	esp0 := cur.interruptStack.End
	if esp0 == 0 {
		esp0 = cur.stack.End
	}
	k.gdtTbl.SetUserThreadObjectAddress(cpu.id, uint32(cur.tlsCopy.UserThreadObject))
	k.gdtTbl.SetTssEsp0(cpu.id, uint32(esp0))

	return cur.state
}

// RunInterrupt is the interrupt envelope every trampoline (timer tick,
// syscall gate, fault handler) funnels through: store the interrupted
// thread's state, let Schedule pick what runs next, and restore its
// state for dispatch (spec.md §4.7, §4.8, §4.9's yield path all reduce to
// this one call with different cpu.locksHeld/cpu.preferredNextTask setup
// beforehand).
func (k *Tasking) RunInterrupt(cpu *CPU, state *ProcessorState) *ProcessorState {
	cpu.lock.Lock()
	cpu.inInterruptHandler = true
	cpu.lock.Unlock()

	k.Store(cpu, state)
	k.Schedule(cpu)
	next := k.Restore(cpu)

	cpu.lock.Lock()
	cpu.inInterruptHandler = false
	cpu.lock.Unlock()

	return next
}
