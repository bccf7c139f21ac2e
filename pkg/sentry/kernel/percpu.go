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

import "sync"

// scheduleEntry is the intrusive singly linked run-list node (spec.md §3,
// Design Note 9: kept singly linked rather than upgraded to doubly
// linked — see SPEC_FULL.md §4).
type scheduleEntry struct {
	task *Thread
	next *scheduleEntry
}

// CPU is the per-processor scheduling state (spec.md §3). Every field is
// either owned exclusively by the goroutine simulating that CPU's
// interrupt/dispatch loop, or guarded by lock when another CPU's reaper
// or signal path needs to inspect it.
type CPU struct {
	id int

	lock sync.Mutex

	time  uint64
	round uint32

	current   *Thread
	list      *scheduleEntry
	tail      *scheduleEntry
	taskCount int

	idleTask          *Thread
	cleanupTask       *Thread
	preferredNextTask *Thread

	// locksHeld counts kernel locks held by code running on this CPU.
	// Schedule refuses to run while it is nonzero (spec.md invariant 2).
	locksHeld int

	// schedulePending records that PleaseSchedule was asked for while
	// locksHeld was nonzero; Tasking.ReleaseLock acts on it once the
	// count returns to zero.
	schedulePending bool

	inInterruptHandler bool

	policy Policy
}

// ID returns the CPU's index, matching the index used with paging.Manager
// and gdt.GDT.
func (c *CPU) ID() int { return c.id }

// Current returns the thread currently dispatched on this CPU, or nil.
func (c *CPU) Current() *Thread {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current
}

// TaskCount returns the number of threads on this CPU's run list. The
// cleanup thread is on the list and counted; the idle thread is not.
func (c *CPU) TaskCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.taskCount
}

// AcquireLock increments the CPU's held-lock count. Kernel code that
// takes a spinlock-equivalent while running on this CPU must bracket it
// with AcquireLock/ReleaseLock so Schedule can enforce invariant 2.
func (c *CPU) AcquireLock() {
	c.lock.Lock()
	c.locksHeld++
	c.lock.Unlock()
}

// ReleaseLock decrements the CPU's held-lock count.
func (c *CPU) ReleaseLock() {
	c.lock.Lock()
	if c.locksHeld > 0 {
		c.locksHeld--
	}
	c.lock.Unlock()
}

// containsLocked reports whether t already has an entry on the run list.
// c.lock must be held.
func (c *CPU) containsLocked(t *Thread) bool {
	for e := c.list; e != nil; e = e.next {
		if e.task == t {
			return true
		}
	}
	return false
}

// addToListLocked appends entry to the tail of the run list. c.lock must
// be held.
func (c *CPU) addToListLocked(t *Thread) {
	e := &scheduleEntry{task: t}
	if c.tail == nil {
		c.list = e
		c.tail = e
	} else {
		c.tail.next = e
		c.tail = e
	}
	c.taskCount++
}

// removeFromListLocked unlinks t from the run list if present. c.lock
// must be held.
func (c *CPU) removeFromListLocked(t *Thread) {
	var prev *scheduleEntry
	for e := c.list; e != nil; e = e.next {
		if e.task == t {
			if prev == nil {
				c.list = e.next
			} else {
				prev.next = e.next
			}
			if e == c.tail {
				c.tail = prev
			}
			c.taskCount--
			return
		}
		prev = e
	}
}
