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
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lokoxe/ghost-tasking/pkg/fsproc"
	"github.com/lokoxe/ghost-tasking/pkg/gdt"
	"github.com/lokoxe/ghost-tasking/pkg/klog"
	"github.com/lokoxe/ghost-tasking/pkg/memory/frame"
	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
	"github.com/lokoxe/ghost-tasking/pkg/memory/refcount"
	"github.com/lokoxe/ghost-tasking/pkg/memory/vrange"
)

// Config is the boot-time configuration of a Tasking instance, the Go
// stand-in for the constants the original reads out of the bootloader's
// memory map and kernel.hpp's compile-time layout (spec.md §6).
type Config struct {
	NumCPUs int

	PhysicalBase  frame.PhysAddr
	PhysicalPages int

	UserRangeStart vrange.Addr
	UserRangeEnd   vrange.Addr

	KernelStackPages     uint32
	InterruptStackPages  uint32
}

// DefaultConfig returns a Config sized for local development and tests.
func DefaultConfig() Config {
	return Config{
		NumCPUs:             4,
		PhysicalBase:        0,
		PhysicalPages:       4096,
		UserRangeStart:      0x40000000,
		UserRangeEnd:        0x80000000,
		KernelStackPages:    4,
		InterruptStackPages: 1,
	}
}

// Tasking is the root handle for the tasking core: it owns the global
// thread index, the per-CPU scheduling state, and the memory/segmentation
// collaborators every operation in this package needs (spec.md §6). It
// plays the role the original's kernel-wide globals (g_tasking, g_idt,
// g_pp_allocator, ...) play, collected into one explicit value instead of
// package-level state, matching gVisor's kernel.Kernel/TaskSet pattern of
// a single root object threading every subsystem together.
type Tasking struct {
	cfg Config

	idLock sync.Mutex
	nextID ThreadID

	indexLock sync.RWMutex
	index     map[ThreadID]*Thread

	cpus []*CPU

	frames *frame.Allocator
	refs   *refcount.Tracker
	paging *paging.Manager
	gdtTbl *gdt.GDT
	fs     *fsproc.Table

	// borrowSlot is the pseudo-CPU index TemporarySwitchTo/Back use when
	// called with a nil *CPU: callers not running on behalf of any
	// particular core (signal injection from a driver callback, tests)
	// still need an address-space register to borrow into and restore,
	// so the paging.Manager is sized with one extra slot for them.
	borrowSlot int
}

// NewTasking allocates a Tasking instance and its collaborators, but does
// not yet create any thread; call InitializeBsp followed by
// InitializeLocal on each CPU to bring the system up (spec.md §4.2).
func NewTasking(cfg Config) *Tasking {
	k := &Tasking{
		cfg:        cfg,
		nextID:     1,
		index:      make(map[ThreadID]*Thread),
		cpus:       make([]*CPU, cfg.NumCPUs),
		frames:     frame.NewAllocator(cfg.PhysicalBase, cfg.PhysicalPages),
		refs:       refcount.NewTracker(),
		paging:     paging.NewManager(cfg.NumCPUs + 1),
		gdtTbl:     gdt.New(cfg.NumCPUs),
		fs:         fsproc.New(),
		borrowSlot: cfg.NumCPUs,
	}
	for i := range k.cpus {
		k.cpus[i] = &CPU{id: i, policy: newRoundRobin()}
	}
	return k
}

// NumCPUs returns the number of cores this Tasking instance manages.
func (k *Tasking) NumCPUs() int { return k.cfg.NumCPUs }

// CPU returns the per-core state for index i.
func (k *Tasking) CPU(i int) *CPU { return k.cpus[i] }

// allocateID hands out the next globally unique thread ID (spec.md
// invariant 1).
func (k *Tasking) allocateID() ThreadID {
	k.idLock.Lock()
	defer k.idLock.Unlock()
	id := k.nextID
	k.nextID++
	return id
}

// register adds t to the global thread index, keyed by its ID.
func (k *Tasking) register(t *Thread) {
	k.indexLock.Lock()
	defer k.indexLock.Unlock()
	k.index[t.id] = t
}

// unregister removes tid from the global thread index.
func (k *Tasking) unregister(tid ThreadID) {
	k.indexLock.Lock()
	defer k.indexLock.Unlock()
	delete(k.index, tid)
}

// GetByID resolves a thread ID to its Thread, or nil if it does not exist
// (spec.md §6's "global thread list" lookup used by RaiseSignal and by
// test/debug tooling).
func (k *Tasking) GetByID(tid ThreadID) *Thread {
	k.indexLock.RLock()
	defer k.indexLock.RUnlock()
	return k.index[tid]
}

// Count returns the number of threads currently registered, for tests and
// cmd/tasksim's status subcommand.
func (k *Tasking) Count() int {
	k.indexLock.RLock()
	defer k.indexLock.RUnlock()
	return len(k.index)
}

func (k *Tasking) borrowIndex(cpu *CPU) int {
	if cpu == nil {
		return k.borrowSlot
	}
	return cpu.id
}

// InitializeBsp brings up the bootstrap processor: it creates an idle
// thread and a cleanup thread for CPU 0, each in its own kernel process, and
// returns once CPU 0 is ready to schedule (spec.md §4.2).
func (k *Tasking) InitializeBsp() error {
	return k.InitializeLocal(0)
}

// InitializeLocal brings up one application processor: an idle thread and
// a cleanup thread local to cpuID, each the main thread of its own fresh
// kernel process (mirroring taskingInitializeLocal's two separate
// taskingCreateProcess calls) so both run with SecurityLevelKernel
// (spec.md §4.2, §4.10). Two processes means two IDs are drawn from the
// shared counter per CPU brought up, one per main thread.
func (k *Tasking) InitializeLocal(cpuID int) error {
	if cpuID < 0 || cpuID >= len(k.cpus) {
		return fmt.Errorf("tasking: cpu %d out of range", cpuID)
	}
	cpu := k.cpus[cpuID]

	idleProc, err := k.CreateProcess()
	if err != nil {
		return fmt.Errorf("tasking: initializing cpu %d: %w", cpuID, err)
	}
	idle, err := k.createKernelThread(idleProc, ThreadTypeIdle, idleBody)
	if err != nil {
		return fmt.Errorf("tasking: creating idle thread for cpu %d: %w", cpuID, err)
	}

	cleanupProc, err := k.CreateProcess()
	if err != nil {
		return fmt.Errorf("tasking: initializing cpu %d: %w", cpuID, err)
	}
	cleanup, err := k.createKernelThread(cleanupProc, ThreadTypeCleanup, cleanupBody)
	if err != nil {
		return fmt.Errorf("tasking: creating cleanup thread for cpu %d: %w", cpuID, err)
	}

	cpu.lock.Lock()
	cpu.idleTask = idle
	cpu.cleanupTask = cleanup
	cpu.lock.Unlock()

	idle.assignment = cpu
	// The cleanup thread participates in ordinary round-robin dispatch
	// so its reaper loop actually gets CPU time; idle stays off the run
	// list and is only ever picked as roundRobin's fallback.
	k.Assign(cleanup, cpu)

	// Dispatch once so the cleanup thread's reaper loop starts running;
	// on real hardware the first timer tick after bring-up would do this
	// implicitly by entering the interrupt envelope with no current
	// thread yet (spec.md §4.7's Store returning false).
	k.Schedule(cpu)

	klog.Debugf("tasking: cpu %d initialized (idle=%d cleanup=%d)", cpuID, idle.id, cleanup.id)
	return nil
}

// InitializeAll brings every configured CPU up in parallel, mirroring the
// original's sequential per-AP bring-up but using golang.org/x/sync's
// errgroup so independent cores initialize concurrently and the first
// failure is reported promptly.
func (k *Tasking) InitializeAll(ctx context.Context) error {
	if err := k.InitializeBsp(); err != nil {
		return err
	}
	g, _ := errgroup.WithContext(ctx)
	for i := 1; i < len(k.cpus); i++ {
		cpuID := i
		g.Go(func() error {
			return k.InitializeLocal(cpuID)
		})
	}
	return g.Wait()
}
