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

	"github.com/google/subcommands"

	"github.com/lokoxe/ghost-tasking/pkg/control"
	"github.com/lokoxe/ghost-tasking/pkg/sentry/kernel"
)

// statusCommand boots a Tasking instance and reports its per-CPU run
// queues, the tasksim analogue of runsc's "list"/"events" subcommands.
type statusCommand struct {
	configPath string
}

func (*statusCommand) Name() string     { return "status" }
func (*statusCommand) Synopsis() string { return "report per-cpu run queue occupancy" }
func (*statusCommand) Usage() string {
	return "status [-config path]\n"
}

func (c *statusCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration (defaults to kernel.DefaultConfig)")
}

func (c *statusCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

	fmt.Printf("tasksim: %d cpus, %d threads registered\n", k.NumCPUs(), k.Count())
	for i := 0; i < k.NumCPUs(); i++ {
		cpu := k.CPU(i)
		current := "<none>"
		if t := cpu.Current(); t != nil {
			current = fmt.Sprintf("%d", t.ID())
		}
		fmt.Printf("  cpu %d: %d runnable, current=%s\n", cpu.ID(), cpu.TaskCount(), current)
	}
	return subcommands.ExitSuccess
}
