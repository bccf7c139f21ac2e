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
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/lokoxe/ghost-tasking/pkg/memory/frame"
	"github.com/lokoxe/ghost-tasking/pkg/memory/vrange"
	"github.com/lokoxe/ghost-tasking/pkg/sentry/kernel"
)

// bootConfig is the on-disk shape of a tasksim boot file, decoded with
// BurntSushi/toml. It mirrors kernel.Config field for field so loading a
// file is a straight conversion.
type bootConfig struct {
	NumCPUs             int    `toml:"num_cpus"`
	PhysicalBase        uint32 `toml:"physical_base"`
	PhysicalPages       int    `toml:"physical_pages"`
	UserRangeStart      uint32 `toml:"user_range_start"`
	UserRangeEnd        uint32 `toml:"user_range_end"`
	KernelStackPages    uint32 `toml:"kernel_stack_pages"`
	InterruptStackPages uint32 `toml:"interrupt_stack_pages"`
}

func (b bootConfig) toKernelConfig() kernel.Config {
	return kernel.Config{
		NumCPUs:             b.NumCPUs,
		PhysicalBase:        frame.PhysAddr(b.PhysicalBase),
		PhysicalPages:       b.PhysicalPages,
		UserRangeStart:      vrange.Addr(b.UserRangeStart),
		UserRangeEnd:        vrange.Addr(b.UserRangeEnd),
		KernelStackPages:    b.KernelStackPages,
		InterruptStackPages: b.InterruptStackPages,
	}
}

// loadConfig decodes a toml boot file at path into a kernel.Config. An
// empty path returns kernel.DefaultConfig() unchanged.
func loadConfig(path string) (kernel.Config, error) {
	if path == "" {
		return kernel.DefaultConfig(), nil
	}
	var b bootConfig
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return kernel.Config{}, fmt.Errorf("tasksim: decoding %s: %w", path, err)
	}
	return b.toKernelConfig(), nil
}
