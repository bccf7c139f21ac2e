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

// Package kernel is the tasking core: process and thread lifecycle,
// per-CPU scheduling, context switching, address-space borrowing, TLS
// provisioning, signal injection and resource reclamation. It plays the
// same role in this repository that pkg/sentry/kernel plays in gVisor:
// a from-scratch, Go-native reimplementation of a kernel's task
// management, grounded line-for-line on the original's
// kernel/tasking/tasking.cpp (see _examples/original_source).
package kernel

import "github.com/lokoxe/ghost-tasking/pkg/memory/paging"

// ThreadID uniquely identifies a thread; a process's ID is its main
// thread's ID (spec.md invariant 5).
type ThreadID uint32

// ProcessID is an alias for clarity at call sites that only deal with
// process identity.
type ProcessID = ThreadID

// SecurityLevel gates segment selectors and IOPL (spec.md §4.3).
type SecurityLevel int

const (
	// SecurityLevelKernel runs at ring 0 with IOPL 3.
	SecurityLevelKernel SecurityLevel = iota
	// SecurityLevelDriver runs at ring 3 with IOPL 3.
	SecurityLevelDriver
	// SecurityLevelApplication runs at ring 3 with IOPL 0.
	SecurityLevelApplication
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityLevelKernel:
		return "kernel"
	case SecurityLevelDriver:
		return "driver"
	case SecurityLevelApplication:
		return "application"
	default:
		return "unknown"
	}
}

// ThreadStatus is the scheduling status of a thread (spec.md §3).
type ThreadStatus int32

const (
	// ThreadRunning means the thread is eligible to be dispatched.
	ThreadRunning ThreadStatus = iota
	// ThreadWaiting means the thread is blocked on waitResolver/waitData.
	ThreadWaiting
	// ThreadDead means the thread has been marked for reaping.
	ThreadDead
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadWaiting:
		return "waiting"
	case ThreadDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ThreadType distinguishes specialized thread bodies from ordinary ones.
type ThreadType int

const (
	// ThreadTypeDefault is an ordinary thread.
	ThreadTypeDefault ThreadType = iota
	// ThreadTypeIdle is a per-CPU idle thread, never placed on the run list.
	ThreadTypeIdle
	// ThreadTypeCleanup is the per-CPU reaper thread.
	ThreadTypeCleanup
)

// Segment selectors and ring bits, fixed by the architecture contract in
// spec.md §6.
const (
	GDTKernelCode = 0x08
	GDTKernelData = 0x10
	GDTUserCode   = 0x18
	GDTUserData   = 0x20

	Ring0 = 0x0
	Ring3 = 0x3

	// EFLAGSInterruptFlag is IF, set on every freshly reset thread.
	EFLAGSInterruptFlag = 0x200
	// EFLAGSIOPL grants I/O privilege to kernel and driver threads.
	EFLAGSIOPL = 0x3000
)

// PageSize is the architectural page size used throughout this package.
const PageSize = 4096

// ProcessorState is the saved register snapshot pushed onto a thread's
// kernel stack by the interrupt entry trampoline (spec.md §3's "state").
// It is addressed directly by pointer, mirroring the original's
// volatile g_processor_state*, because Restore and signal injection both
// need to mutate it through the saved stack location rather than through
// a copy.
type ProcessorState struct {
	EAX, EBX, ECX, EDX, ESI, EDI, EBP uint32
	EIP                               uint32
	ESP                               uint32
	CS, SS, DS, ES, FS, GS            uint32
	EFLAGS                            uint32
}

// VirtualRange is a [Start, End) span of virtual addresses.
type VirtualRange struct {
	Start, End paging.VirtAddr
}

// Pages returns the number of PageSize pages spanned by the range.
func (r VirtualRange) Pages() int {
	if r.End <= r.Start {
		return 0
	}
	return int((r.End - r.Start) / PageSize)
}
