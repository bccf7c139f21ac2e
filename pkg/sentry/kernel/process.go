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

	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
	"github.com/lokoxe/ghost-tasking/pkg/memory/vrange"
)

// TLSMaster describes the read-only thread-local-storage template a
// process's loader installed (spec.md §3).
type TLSMaster struct {
	Location  paging.VirtAddr
	CopySize  uint32
	TotalSize uint32
	Alignment uint32
}

// Heap is the user heap window (spec.md §3), grown by Tasking.ExtendHeap.
type Heap struct {
	Brk   paging.VirtAddr
	Start paging.VirtAddr
	Pages uint32
}

// Environment is the argv/executable/cwd triple carried per process.
type Environment struct {
	Arguments        []string
	ExecutablePath   string
	WorkingDirectory string
}

// taskEntry is the intrusive singly linked list node for Process.tasks,
// kept as a plain linked list rather than upgraded to doubly linked: see
// SPEC_FULL.md §4's note on Design Note 9's doubly-linked suggestion.
type taskEntry struct {
	task *Thread
	next *taskEntry
}

// Process is the unit of address-space ownership (spec.md §3).
type Process struct {
	id ProcessID

	lock sync.Mutex
	// main is a weak reference: ownership of the thread lives in the
	// global thread index and in tasks below.
	main  *Thread
	tasks *taskEntry

	pageDirectory    paging.Directory
	virtualRangePool *vrange.Pool

	tlsMaster      TLSMaster
	signalHandlers [SigCount]SignalHandler
	heap           Heap
	environment    Environment
}

// ID returns the process's ID, equal to its main thread's ID (invariant 5).
func (p *Process) ID() ProcessID {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.id
}

// Main returns the process's main thread, or nil before the first thread
// has attached.
func (p *Process) Main() *Thread {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.main
}

// TaskCount returns the number of threads currently attached to p.
func (p *Process) TaskCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	n := 0
	for e := p.tasks; e != nil; e = e.next {
		n++
	}
	return n
}

// ForEachTask invokes fn for every thread attached to p, holding the
// process lock for the duration (matching the original's pattern of
// walking process->tasks under process->lock).
func (p *Process) ForEachTask(fn func(*Thread)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for e := p.tasks; e != nil; e = e.next {
		fn(e.task)
	}
}

// SetSignalHandler registers sig's handler (used by a sigaction-style
// syscall outside this core's scope; exposed so callers such as tests can
// configure signal delivery).
func (p *Process) SetSignalHandler(sig Signal, h SignalHandler) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.signalHandlers[sig] = h
}

// SetEnvironment records argv/executable/cwd for the process.
func (p *Process) SetEnvironment(env Environment) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.environment = env
}

// Environment returns a copy of the process's environment.
func (p *Process) Environment() Environment {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.environment
}

// SetTLSMaster installs the TLS template every subsequent non-kernel
// thread created in p will copy (spec.md §4.6).
func (p *Process) SetTLSMaster(m TLSMaster) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.tlsMaster = m
}

// PageDirectory returns the physical address of p's root page directory.
func (p *Process) PageDirectory() paging.Directory {
	return p.pageDirectory
}

// heapReservedPages bounds how far a process's heap can grow via
// ExtendHeap (heap.go): the virtual span is reserved up front, the way
// the original reserves a fixed-size heap window at process creation and
// only maps frames into it lazily as sbrk advances the break.
const heapReservedPages = 1024

// CreateProcess allocates an empty process: a fresh page directory, an
// empty virtual range pool covering the user address space, a reserved
// (but unmapped) heap window, zeroed signal handlers, and no attached
// threads (spec.md §4.2's "fresh kernel processes" and §4.3's
// createThread target both start here).
func (k *Tasking) CreateProcess() (*Process, error) {
	dirFrame, err := k.frames.Allocate()
	if err != nil {
		return nil, err
	}
	dir := paging.Directory(dirFrame)
	k.paging.NewSpace(dir)

	pool := vrange.New(PageSize)
	pool.AddRange(k.cfg.UserRangeStart, k.cfg.UserRangeEnd)

	heapStart, err := pool.Allocate(heapReservedPages, vrange.FlagPhysicalOwner)
	if err != nil {
		return nil, fmt.Errorf("tasking: reserving heap window: %w", err)
	}

	return &Process{
		pageDirectory:    dir,
		virtualRangePool: pool,
		heap: Heap{
			Start: paging.VirtAddr(heapStart),
			Brk:   paging.VirtAddr(heapStart),
		},
	}, nil
}
