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
	"sync"
	"sync/atomic"

	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
)

// WaitResolver is the predicate a blocked thread is waiting on, matching
// waitResolver/waitData on spec.md's Thread (§3).
type WaitResolver func(data any) bool

// syscallHandoff is the cooperative syscall handoff state described but
// not fully specified by spec.md §9 Open Question (1).
type syscallHandoff struct {
	processingTask *Thread
	sourceTask     *Thread
	handler        uintptr
	data           any
}

// TLSCopy is the per-thread TLS block provisioned inside the owning
// process (spec.md §3, §4.6).
type TLSCopy struct {
	Start, End       paging.VirtAddr
	UserThreadObject paging.VirtAddr
}

// Thread is the unit of scheduling (spec.md §3).
type Thread struct {
	id      ThreadID
	process *Process

	securityLevel SecurityLevel
	statusVal     atomic.Int32
	typ           ThreadType

	// mu serializes everything below that isn't otherwise covered by
	// per-CPU or per-process locking: state, tlsCopy, syscall handoff,
	// wait fields and interruptionInfo. The spec's concurrency model
	// (§5) says a thread's own control block is serialized by the
	// thread itself while running and by the process lock otherwise;
	// mu is the explicit Go stand-in for that informal guarantee, since
	// signal injection and removal can observe a thread that is not
	// currently executing on any CPU.
	mu sync.Mutex

	state *ProcessorState

	stack          VirtualRange
	interruptStack VirtualRange

	// overridePageDirectory is touched only by the CPU currently running
	// this thread (or borrowing on its behalf), never concurrently, so
	// it needs no lock of its own (spec.md invariant 3).
	overridePageDirectory paging.Directory

	tlsCopy TLSCopy

	syscall syscallHandoff

	waitResolver WaitResolver
	waitData     any

	interruptionInfo *InterruptionInfo

	assignment *CPU

	// stackMemory is the simulator's backing store for bytes pushed onto
	// this thread's user stack by signal injection (spec.md §4.13). Real
	// hardware writes these through the mapped page tables; since frames
	// in this simulator don't carry byte-addressable content, the words
	// are kept here, keyed by virtual address, which is sufficient for
	// every contract this core makes about stack content.
	stackMemory map[uint32]uint32

	// body, when non-nil, is run in its own goroutine once the thread is
	// dispatched for the first time (used by the idle and cleanup
	// threads, and by demo/test threads with actual code to run).
	body    func(k *Tasking, cpu *CPU, t *Thread)
	started bool

	// resumeCh wakes a body goroutine parked in KernelThreadYield once
	// Schedule dispatches this thread again.
	resumeCh chan struct{}
}

// ID returns the thread's globally unique identifier.
func (t *Thread) ID() ThreadID { return t.id }

// Process returns the owning process.
func (t *Thread) Process() *Process { return t.process }

// SecurityLevel returns the thread's ring/IOPL class.
func (t *Thread) SecurityLevel() SecurityLevel { return t.securityLevel }

// Status returns the thread's current scheduling status.
func (t *Thread) Status() ThreadStatus { return t.status() }

func (t *Thread) status() ThreadStatus { return ThreadStatus(t.statusVal.Load()) }

func (t *Thread) setStatus(s ThreadStatus) { t.statusVal.Store(int32(s)) }

// MarkDead sets the thread's status to dead. Any code holding a handle to
// the thread may call this; it is the sole cancellation primitive
// (spec.md §5).
func (t *Thread) MarkDead() { t.setStatus(ThreadDead) }

// State returns the thread's saved processor state pointer. Valid
// whenever the thread is not currently executing on a CPU.
func (t *Thread) State() *ProcessorState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// WaitLabel implements wait.Task.
func (t *Thread) WaitLabel() string {
	return fmt.Sprintf("thread(%d)", t.id)
}

// Assignment returns the CPU this thread is currently assigned to, or nil.
func (t *Thread) Assignment() *CPU {
	return t.assignment
}

// SetBody installs the Go function that plays the role of this thread's
// instruction stream once it is first dispatched (spec.md §4.8's
// "runs"). Kernel threads created through createKernelThread always
// have one; ordinary application threads created through CreateThread
// have none by default, since in a real kernel their code lives in
// user-mode memory this simulator never executes — callers that want a
// driven workload (demos, tests exercising scenario 3's die-and-reap
// path) call SetBody before the thread is first assigned to a CPU.
func (t *Thread) SetBody(body func(k *Tasking, cpu *CPU, t *Thread)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.body = body
}

func (t *Thread) writeUserWord(vaddr uint32, val uint32) {
	if t.stackMemory == nil {
		t.stackMemory = make(map[uint32]uint32)
	}
	t.stackMemory[vaddr] = val
}

// ReadUserWord returns a word previously written to the thread's
// simulated user stack, for tests that assert on synthesized signal
// frames (spec.md §8 scenario 5).
func (t *Thread) ReadUserWord(vaddr uint32) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.stackMemory[vaddr]
	return v, ok
}
