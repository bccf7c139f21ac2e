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
)

// Signal is a POSIX-style signal number.
type Signal int

// SigCount bounds Process.signalHandlers (spec.md §3, §6).
const SigCount = 32

// Signals used explicitly by this core; the rest of the namespace is
// reserved for callers outside the tasking core's concern.
const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGSEGV Signal = 11
	SIGUSR1 Signal = 10
	SIGCHLD Signal = 17
)

// SignalHandler is a process-wide registration for one signal number
// (spec.md §3).
type SignalHandler struct {
	HandlerAddress paging.VirtAddr
	ReturnAddress  paging.VirtAddr
	Task           ThreadID
}

// RaiseSignalStatus is the outcome of RaiseSignal (spec.md §6).
type RaiseSignalStatus int

const (
	// RaiseSignalSuccessful means the signal was either delivered or
	// correctly dropped (no handler, not SIGSEGV).
	RaiseSignalSuccessful RaiseSignalStatus = iota
	// RaiseSignalInvalidTarget means the registered handler thread does
	// not exist.
	RaiseSignalInvalidTarget
	// RaiseSignalInvalidState means the handling thread is already
	// mid-delivery of another signal.
	RaiseSignalInvalidState
)

func (s RaiseSignalStatus) String() string {
	switch s {
	case RaiseSignalSuccessful:
		return "successful"
	case RaiseSignalInvalidTarget:
		return "invalid_target"
	case RaiseSignalInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// InterruptionInfo captures everything needed to resume a thread's prior
// life once a synthesized signal-handler frame has run to completion
// (spec.md §3, §4.13).
type InterruptionInfo struct {
	PreviousWaitData     any
	PreviousWaitResolver WaitResolver
	PreviousStatus       ThreadStatus
	State                ProcessorState
	StatePtr             *ProcessorState
}

// RaiseSignal implements spec.md §4.13 step 1-4: resolve the registered
// handler (if any), pick the handling thread, and hand off to
// InterruptTask. With no handler registered, SIGSEGV kills the target
// unconditionally and any other signal is a silent no-op (spec.md §7(c)).
func (k *Tasking) RaiseSignal(target *Thread, sig Signal) (RaiseSignalStatus, error) {
	if sig < 0 || int(sig) >= SigCount {
		return RaiseSignalInvalidTarget, fmt.Errorf("kernel: signal %d out of range", sig)
	}

	target.process.lock.Lock()
	handler := target.process.signalHandlers[sig]
	target.process.lock.Unlock()

	if handler.HandlerAddress == 0 {
		if sig == SIGSEGV {
			klog.Infof("signal: thread %d killed by SIGSEGV", target.id)
			target.setStatus(ThreadDead)
			if cpu := target.assignment; cpu != nil {
				cpu.lock.Lock()
				isCurrent := cpu.current == target
				cpu.lock.Unlock()
				if isCurrent {
					k.Schedule(cpu)
				}
			}
		}
		return RaiseSignalSuccessful, nil
	}

	var handling *Thread
	if handler.Task == target.id {
		handling = target
	} else {
		handling = k.GetByID(handler.Task)
	}
	if handling == nil {
		klog.Infof("signal(%d, %d): registered signal handler task %d doesn't exist", target.id, sig, handler.Task)
		return RaiseSignalInvalidTarget, nil
	}

	handling.mu.Lock()
	busy := handling.interruptionInfo != nil
	handling.mu.Unlock()
	if busy {
		klog.Infof("signal: can't raise signal in currently interrupted task %d", target.id)
		return RaiseSignalInvalidState, nil
	}

	k.InterruptTask(handling, handler.HandlerAddress, handler.ReturnAddress, uint32(sig))
	return RaiseSignalSuccessful, nil
}

// InterruptTask rewrites task's saved processor state so that, on its next
// dispatch, it resumes execution at entry with args pushed on its user
// stack in declared order and returnAddress as the synthetic return
// address (spec.md §4.13). It refuses kernel-level tasks, which have no
// user stack to synthesize a frame on.
func (k *Tasking) InterruptTask(task *Thread, entry, returnAddress paging.VirtAddr, args ...uint32) {
	if task.securityLevel == SecurityLevelKernel {
		klog.Infof("tasking: kernel task %d can not be interrupted", task.id)
		return
	}

	task.process.lock.Lock()
	defer task.process.lock.Unlock()

	back := k.TemporarySwitchTo(nil, task.process.pageDirectory)
	defer k.TemporarySwitchBack(nil, back)

	task.mu.Lock()
	defer task.mu.Unlock()

	info := &InterruptionInfo{
		PreviousWaitData:     task.waitData,
		PreviousWaitResolver: task.waitResolver,
		PreviousStatus:       task.status(),
	}
	task.waitData = nil
	task.waitResolver = nil
	task.setStatus(ThreadRunning)

	info.State = *task.state
	info.StatePtr = task.state
	task.interruptionInfo = info

	task.state.EIP = uint32(entry)

	esp := task.state.ESP
	for i := 0; i < len(args); i++ {
		esp -= 4
		task.writeUserWord(esp, args[i])
	}
	esp -= 4
	task.writeUserWord(esp, uint32(returnAddress))
	task.state.ESP = esp
}
