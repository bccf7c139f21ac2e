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

package control

import (
	"context"
	"testing"

	"github.com/lokoxe/ghost-tasking/pkg/sentry/kernel"
)

func testKernel(t *testing.T, numCPUs int) *kernel.Tasking {
	t.Helper()
	cfg := kernel.DefaultConfig()
	cfg.NumCPUs = numCPUs
	return kernel.NewTasking(cfg)
}

func TestSpawnRejectsDuplicateNames(t *testing.T) {
	k := testKernel(t, 1)
	l := NewLifecycle(k)
	if err := l.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	cpu := k.CPU(0)

	if _, err := l.Spawn("worker", cpu, kernel.SecurityLevelApplication, 0x40001000); err != nil {
		t.Fatalf("first Spawn: %v", err)
	}
	if _, err := l.Spawn("worker", cpu, kernel.SecurityLevelApplication, 0x40001000); err == nil {
		t.Fatalf("expected a second Spawn under the same name to fail")
	}
}

func TestSpawnRegistersRunningState(t *testing.T) {
	k := testKernel(t, 1)
	l := NewLifecycle(k)
	if err := l.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	cpu := k.CPU(0)

	proc, err := l.Spawn("worker", cpu, kernel.SecurityLevelApplication, 0x40001000)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if proc.Main() == nil {
		t.Fatalf("expected the spawned process to have a main thread")
	}

	status := l.Status()
	if status["worker"] != StateRunning {
		t.Fatalf("Status()[worker] = %v, want %v", status["worker"], StateRunning)
	}
}

func TestKillMarksWorkloadStopped(t *testing.T) {
	k := testKernel(t, 1)
	l := NewLifecycle(k)
	if err := l.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	cpu := k.CPU(0)

	proc, err := l.Spawn("worker", cpu, kernel.SecurityLevelApplication, 0x40001000)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := l.Kill("worker"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if status := l.Status(); status["worker"] != StateStopped {
		t.Fatalf("Status()[worker] = %v, want %v", status["worker"], StateStopped)
	}
	if proc.Main().Status() != kernel.ThreadDead {
		t.Fatalf("expected the main thread to be marked dead after Kill")
	}
}

func TestKillOfUnknownWorkloadFails(t *testing.T) {
	k := testKernel(t, 1)
	l := NewLifecycle(k)
	if err := l.Kill("ghost"); err == nil {
		t.Fatalf("expected Kill of a never-spawned workload to fail")
	}
}

func TestShutdownIsSafeToCallTwice(t *testing.T) {
	k := testKernel(t, 1)
	l := NewLifecycle(k)
	l.Shutdown()
	l.Shutdown()
	select {
	case <-l.ShutdownCh:
	default:
		t.Fatalf("expected ShutdownCh to be closed")
	}
}
