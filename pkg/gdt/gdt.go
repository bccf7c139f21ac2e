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

// Package gdt simulates the two pieces of global/task segmentation state
// that the context restore path reprograms on every dispatch (spec.md
// §4.7): the user-thread-object base used by the fixed GS selector 0x30,
// and the TSS's ESP0, the ring-0 stack pointer loaded on the next
// ring-3-to-ring-0 transition. Real hardware has one GDT and one TSS per
// CPU; this package mirrors that with one Table per core.
package gdt

import "sync"

// UserThreadSegment is the fixed GS selector user threads load to reach
// their TLS descriptor (spec.md §6).
const UserThreadSegment = 0x30

// Table holds the per-CPU segmentation state under test.
type Table struct {
	mu            sync.Mutex
	userThreadObj uint32
	tssEsp0       uint32
}

// GDT is the system-wide collection of per-CPU tables.
type GDT struct {
	tables []Table
}

// New allocates a GDT/TSS pair for each of numCPUs cores.
func New(numCPUs int) *GDT {
	return &GDT{tables: make([]Table, numCPUs)}
}

// SetUserThreadObjectAddress programs the user-thread-object base for cpu.
func (g *GDT) SetUserThreadObjectAddress(cpu int, vaddr uint32) {
	t := &g.tables[cpu]
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userThreadObj = vaddr
}

// SetTssEsp0 programs the ring-0 stack pointer for cpu's TSS.
func (g *GDT) SetTssEsp0(cpu int, vaddr uint32) {
	t := &g.tables[cpu]
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tssEsp0 = vaddr
}

// UserThreadObjectAddress returns the value last programmed for cpu, for
// tests and introspection.
func (g *GDT) UserThreadObjectAddress(cpu int) uint32 {
	t := &g.tables[cpu]
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userThreadObj
}

// TssEsp0 returns the value last programmed for cpu.
func (g *GDT) TssEsp0(cpu int) uint32 {
	t := &g.tables[cpu]
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tssEsp0
}
