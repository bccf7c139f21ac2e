// Copyright 2021 The Ghost Authors.
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

// Package control wires named demo workloads onto a running tasking
// core: it is the boundary cmd/tasksim's subcommands talk to instead of
// poking kernel.Tasking directly, the same role Lifecycle plays between
// runsc's container subcommands and the sentry kernel.
package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/lokoxe/ghost-tasking/pkg/klog"
	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
	"github.com/lokoxe/ghost-tasking/pkg/sentry/kernel"
)

// ProcessState is the coarse lifecycle state of a named workload.
type ProcessState int

const (
	// StateCreated means Spawn has run but the process has not yet been
	// placed on a CPU.
	StateCreated ProcessState = iota
	// StateRunning means the process's main thread has been assigned.
	StateRunning
	// StateStopped means Kill was called.
	StateStopped
)

func (s ProcessState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// workload is the set of parameters Lifecycle tracks for one named
// process it spawned.
type workload struct {
	proc  *kernel.Process
	state ProcessState
}

// Lifecycle provides functions related to starting and stopping
// demo/test workloads on top of a Tasking instance.
type Lifecycle struct {
	// Tasking is the tasking core every workload runs on.
	Tasking *kernel.Tasking

	// ShutdownCh is closed once Shutdown is called, for callers (the CLI's
	// top-level command loop) that want to wait on it.
	ShutdownCh chan struct{}

	// mu protects the fields below.
	mu sync.RWMutex

	// workloads is a map of name to the workload it identifies.
	workloads map[string]*workload

	shutdownOnce sync.Once
}

// NewLifecycle returns a Lifecycle bound to k.
func NewLifecycle(k *kernel.Tasking) *Lifecycle {
	return &Lifecycle{
		Tasking:    k,
		ShutdownCh: make(chan struct{}),
		workloads:  make(map[string]*workload),
	}
}

// Boot brings every configured CPU up (spec.md §4.2).
func (l *Lifecycle) Boot(ctx context.Context) error {
	return l.Tasking.InitializeAll(ctx)
}

// Spawn creates a fresh process named name with a single main thread
// entering at entry, and assigns it to cpu. Spawning under a name already
// in use is an error.
func (l *Lifecycle) Spawn(name string, cpu *kernel.CPU, level kernel.SecurityLevel, entry paging.VirtAddr) (*kernel.Process, error) {
	return l.SpawnFunc(name, cpu, level, entry, nil)
}

// SpawnFunc is Spawn plus an optional body: the Go function the main
// thread runs once first dispatched (kernel.Thread.SetBody). A nil body
// behaves exactly like Spawn — the thread is a passive control block
// whose lifecycle a test or CLI subcommand drives directly.
func (l *Lifecycle) SpawnFunc(name string, cpu *kernel.CPU, level kernel.SecurityLevel, entry paging.VirtAddr, body func(*kernel.Tasking, *kernel.CPU, *kernel.Thread)) (*kernel.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.workloads[name]; exists {
		return nil, fmt.Errorf("control: workload %q already exists", name)
	}

	proc, err := l.Tasking.CreateProcess()
	if err != nil {
		return nil, fmt.Errorf("control: spawning %q: %w", name, err)
	}
	main, err := l.Tasking.CreateThread(proc, level, kernel.ThreadTypeDefault, entry)
	if err != nil {
		return nil, fmt.Errorf("control: spawning %q: %w", name, err)
	}
	if body != nil {
		main.SetBody(body)
	}
	l.Tasking.Assign(main, cpu)

	l.workloads[name] = &workload{proc: proc, state: StateRunning}
	klog.Infof("control: spawned %q as process %d on cpu %d", name, proc.ID(), cpu.ID())
	return proc, nil
}

// Kill marks every thread in the named workload dead (spec.md §4.12).
func (l *Lifecycle) Kill(name string) error {
	l.mu.Lock()
	w, ok := l.workloads[name]
	if ok {
		w.state = StateStopped
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("control: no such workload %q", name)
	}
	l.Tasking.KillProcess(w.proc)
	return nil
}

// Status returns a snapshot of every tracked workload's state.
func (l *Lifecycle) Status() map[string]ProcessState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]ProcessState, len(l.workloads))
	for name, w := range l.workloads {
		out[name] = w.state
	}
	return out
}

// Shutdown signals that the lifecycle is done handing out new workloads.
// It is safe to call more than once.
func (l *Lifecycle) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.ShutdownCh)
	})
}
