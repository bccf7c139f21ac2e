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

// Policy picks the next thread to dispatch on cpu, given its current run
// list (spec.md §4.8). Next is called with cpu.lock held.
type Policy interface {
	Next(cpu *CPU) *Thread
}

// roundRobin is the default policy: advance through the run list in
// insertion order, skipping dead or waiting threads, falling back to the
// idle thread when nothing is runnable.
type roundRobin struct {
	cursor *scheduleEntry
}

func newRoundRobin() *roundRobin { return &roundRobin{} }

func (p *roundRobin) Next(cpu *CPU) *Thread {
	if cpu.preferredNextTask != nil {
		t := cpu.preferredNextTask
		cpu.preferredNextTask = nil
		if t.status() == ThreadRunning {
			return t
		}
	}

	if cpu.list == nil {
		return cpu.idleTask
	}
	if p.cursor == nil {
		p.cursor = cpu.list
	}

	start := p.cursor
	for {
		candidate := p.cursor
		p.cursor = p.cursor.next
		if p.cursor == nil {
			p.cursor = cpu.list
		}
		if candidate.task.status() == ThreadRunning {
			return candidate.task
		}
		if p.cursor == start {
			break
		}
	}
	return cpu.idleTask
}

// Schedule picks and dispatches the next runnable thread on cpu (spec.md
// §4.8). It is a no-op while cpu.locksHeld is nonzero (invariant 2): the
// caller must release every kernel lock before scheduling can proceed,
// which AcquireLock/ReleaseLock below enforce for callers that go through
// them.
func (k *Tasking) Schedule(cpu *CPU) {
	cpu.lock.Lock()
	if cpu.locksHeld > 0 {
		cpu.schedulePending = true
		cpu.lock.Unlock()
		return
	}
	cpu.round++
	previous := cpu.current
	next := cpu.policy.Next(cpu)
	cpu.current = next
	cpu.lock.Unlock()

	if next != nil && next != previous {
		k.ensureStarted(cpu, next)
	}
}

// PleaseSchedule requests that task be preferred on its next eligible CPU
// (spec.md §4.8, §6): it records task as cpu.preferredNextTask, which
// roundRobin.Next consults ahead of its ordinary cursor walk, then
// triggers a reschedule on that CPU at the next safe point (immediately
// if no kernel lock is held there, deferred to ReleaseLock otherwise). A
// task with no CPU assignment yet has nothing to prefer it on and is a
// no-op.
func (k *Tasking) PleaseSchedule(task *Thread) {
	cpu := task.Assignment()
	if cpu == nil {
		return
	}
	cpu.lock.Lock()
	cpu.preferredNextTask = task
	cpu.lock.Unlock()

	k.Schedule(cpu)
}

// AcquireLock records that code running on cpu has taken a kernel lock,
// deferring any pending reschedule until ReleaseLock (spec.md invariant
// 2: never schedule while holding a kernel lock).
func (k *Tasking) AcquireLock(cpu *CPU) {
	cpu.AcquireLock()
}

// ReleaseLock records that a kernel lock held on cpu was released, and
// runs a reschedule that PleaseSchedule deferred while the lock was held.
func (k *Tasking) ReleaseLock(cpu *CPU) {
	cpu.lock.Lock()
	if cpu.locksHeld > 0 {
		cpu.locksHeld--
	}
	pending := cpu.locksHeld == 0 && cpu.schedulePending
	if pending {
		cpu.schedulePending = false
	}
	cpu.lock.Unlock()

	if pending {
		k.Schedule(cpu)
	}
}

// ensureStarted launches t's body goroutine the first time it is
// dispatched. Threads created without a body (ordinary user threads in
// this simulator, whose "code" is whatever test or cmd/tasksim scenario
// drives them through Store/Restore) are left alone.
func (k *Tasking) ensureStarted(cpu *CPU, t *Thread) {
	t.mu.Lock()
	started := t.started
	if !started && t.body != nil {
		t.started = true
	}
	body := t.body
	t.mu.Unlock()

	if !started && body != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					klog.Warningf("tasking: thread %d body panicked: %v", t.id, r)
				}
			}()
			body(k, cpu, t)
		}()
		return
	}
	if started {
		notifyResume(t)
	}
}
