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

// Command tasksim drives the tasking core from the outside: it boots a
// configurable number of simulated CPUs, spawns and tears down demo
// workloads, and reports status, the same way runsc's subcommands drive
// a sentry kernel.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/lokoxe/ghost-tasking/pkg/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&bootCommand{}, "")
	subcommands.Register(&demoCommand{}, "")
	subcommands.Register(&statusCommand{}, "")

	var verbose bool
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()
	if !verbose {
		klog.SetLevel(logrus.InfoLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
