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
	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
)

// TemporarySwitchTo loads dir as cpu's active address space and returns
// the directory that was active before the switch, so the caller can
// restore it with TemporarySwitchBack once done reading or writing
// through dir's mappings (spec.md §4.5). If cpu has a current thread,
// its overridePageDirectory is set to dir for the duration of the
// borrow, the same field Restore (switch.go) honors should a yield land
// in the middle of an unbalanced borrow. A borrow attempted while one is
// already outstanding on that thread is a programmer error: the field
// would silently mask the first borrow's restore point, so this panics
// rather than corrupt it (spec.md §4.5, invariant 3). cpu may be nil:
// callers not running on behalf of any particular core — signal
// injection triggered from outside a CPU's interrupt loop, thread
// creation before a thread has been assigned anywhere, or a test —
// borrow through a reserved pseudo-CPU slot instead, which has no
// current thread and so never participates in the nesting check. This
// never races with a real CPU's own TemporarySwitchTo/Back because the
// reserved slot is never used as an actual schedule target.
func (k *Tasking) TemporarySwitchTo(cpu *CPU, dir paging.Directory) paging.Directory {
	idx := k.borrowIndex(cpu)

	if cur := currentOf(cpu); cur != nil {
		cur.mu.Lock()
		if cur.overridePageDirectory != 0 {
			cur.mu.Unlock()
			klog.Panicf("tasking: thread %d already has an outstanding address-space borrow", cur.id)
		}
		cur.overridePageDirectory = dir
		cur.mu.Unlock()
	}

	prev := k.paging.GetCurrentSpace(idx)
	k.paging.SwitchToSpace(idx, dir)
	return prev
}

// TemporarySwitchBack restores a directory previously returned by
// TemporarySwitchTo and clears the borrowing thread's
// overridePageDirectory (spec.md §4.5).
func (k *Tasking) TemporarySwitchBack(cpu *CPU, previous paging.Directory) {
	idx := k.borrowIndex(cpu)

	if cur := currentOf(cpu); cur != nil {
		cur.mu.Lock()
		cur.overridePageDirectory = 0
		cur.mu.Unlock()
	}

	k.paging.SwitchToSpace(idx, previous)
}

// currentOf returns cpu's current thread, or nil if cpu is nil or has
// none yet.
func currentOf(cpu *CPU) *Thread {
	if cpu == nil {
		return nil
	}
	return cpu.Current()
}
