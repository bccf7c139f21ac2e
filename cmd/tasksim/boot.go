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

// bootCommand brings every configured CPU up and reports what got
// created, the tasksim analogue of runsc's "boot" subcommand standing
// up a sentry.
type bootCommand struct {
	configPath string
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "bring up the tasking core's simulated CPUs" }
func (*bootCommand) Usage() string {
	return "boot [-config path]\n"
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration (defaults to kernel.DefaultConfig)")
}

func (c *bootCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

	fmt.Printf("tasksim: %d cpus up, %d threads registered (idle+cleanup per cpu)\n", k.NumCPUs(), k.Count())
	return subcommands.ExitSuccess
}
