// Copyright 2018 The Ghost Authors.
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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"github.com/lokoxe/ghost-tasking/pkg/control"
	"github.com/lokoxe/ghost-tasking/pkg/sentry/kernel"
	"github.com/lokoxe/ghost-tasking/pkg/wait"
)

// demoCommand reproduces the end-to-end pattern of the original's
// applications/testprogram/src/tester.cpp against the simulator: spawn
// a user thread, let it sleep, mark it dead, and watch the per-CPU
// reaper recycle it (spec.md §8 scenario 3, SPEC_FULL.md §6).
type demoCommand struct {
	configPath string
	sleepMs    int
}

func (*demoCommand) Name() string     { return "demo" }
func (*demoCommand) Synopsis() string { return "spawn a workload and watch it live and die" }
func (*demoCommand) Usage() string {
	return "demo [-config path] [-sleep ms]\n"
}

func (c *demoCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration (defaults to kernel.DefaultConfig)")
	f.IntVar(&c.sleepMs, "sleep", 50, "milliseconds the demo workload sleeps before exiting")
}

func (c *demoCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}

	k := kernel.NewTasking(cfg)
	l := control.NewLifecycle(k)
	if err := l.Boot(ctx); err != nil {
		fmt.Printf("tasksim: boot failed: %v\n", err)
		return subcommands.ExitFailure
	}

	cpu := k.CPU(0)
	sleepMs := c.sleepMs
	body := func(k *kernel.Tasking, cpu *kernel.CPU, t *kernel.Thread) {
		wait.Sleep(t, sleepMs)
		fmt.Printf("tasksim: thread %d finished its run, marking dead\n", t.ID())
		k.KernelThreadExit(cpu, t)
	}
	proc, err := l.SpawnFunc("demo", cpu, kernel.SecurityLevelApplication, 0x40001000, body)
	if err != nil {
		fmt.Printf("tasksim: spawn failed: %v\n", err)
		return subcommands.ExitFailure
	}
	main := proc.Main()

	fmt.Printf("tasksim: spawned process %d (main thread %d) on cpu %d\n", proc.ID(), main.ID(), cpu.ID())

	for i := 0; i < 50 && k.GetByID(main.ID()) != nil; i++ {
		time.Sleep(20 * time.Millisecond)
	}

	if k.GetByID(main.ID()) != nil {
		fmt.Printf("tasksim: thread %d was not reaped in time\n", main.ID())
		return subcommands.ExitFailure
	}
	fmt.Printf("tasksim: thread %d reaped, %d threads remain registered\n", main.ID(), k.Count())
	return subcommands.ExitSuccess
}
