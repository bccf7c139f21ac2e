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

// Package paging simulates the two-level x86 translation structures
// (directory + page tables). Real hardware walks these on every memory
// access; the simulator instead keeps one map per address space and a
// per-CPU "currently loaded directory" register, which is all the tasking
// core's contract (spec.md §6) requires of it.
package paging

import (
	"sync"

	"github.com/lokoxe/ghost-tasking/pkg/memory/frame"
)

// VirtAddr is a virtual address. Page-aligned when it names a page.
type VirtAddr uint32

// Directory identifies an address space by the physical address of its
// root page directory frame.
type Directory frame.PhysAddr

// Page table and table flags, named after the bits the original kernel
// cares about (user/kernel visibility); a simulator has no use for the
// rest of the x86 PTE bit layout.
const (
	UserTable = 1 << 0
	UserPage  = 1 << 0
)

type pte struct {
	phys       frame.PhysAddr
	tableFlags uint32
	pageFlags  uint32
}

type space struct {
	mu    sync.RWMutex
	pages map[VirtAddr]pte
}

// Manager is the paging layer: one space per Directory, one "current
// space" register per CPU.
type Manager struct {
	mu      sync.Mutex
	spaces  map[Directory]*space
	current []Directory
}

// NewManager creates a paging manager for a system with numCPUs cores.
func NewManager(numCPUs int) *Manager {
	return &Manager{
		spaces:  make(map[Directory]*space),
		current: make([]Directory, numCPUs),
	}
}

// NewSpace registers dir as a fresh, empty address space.
func (m *Manager) NewSpace(dir Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[dir] = &space{pages: make(map[VirtAddr]pte)}
}

// DestroySpace discards bookkeeping for dir. The caller is responsible for
// having already walked and dereferenced every mapped frame.
func (m *Manager) DestroySpace(dir Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spaces, dir)
}

func (m *Manager) spaceFor(dir Directory) *space {
	m.mu.Lock()
	s := m.spaces[dir]
	m.mu.Unlock()
	return s
}

// MapPage installs a translation for vaddr in dir.
func (m *Manager) MapPage(dir Directory, vaddr VirtAddr, paddr frame.PhysAddr, tableFlags, pageFlags uint32) {
	s := m.spaceFor(dir)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[vaddr] = pte{phys: paddr, tableFlags: tableFlags, pageFlags: pageFlags}
}

// UnmapPage removes the translation for vaddr in dir, if any.
func (m *Manager) UnmapPage(dir Directory, vaddr VirtAddr) {
	s := m.spaceFor(dir)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, vaddr)
}

// VirtualToPhysical resolves vaddr in dir. Returns 0, false if unmapped.
func (m *Manager) VirtualToPhysical(dir Directory, vaddr VirtAddr) (frame.PhysAddr, bool) {
	s := m.spaceFor(dir)
	if s == nil {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[vaddr]
	return p.phys, ok
}

// SwitchToSpace loads dir as the active address space for cpu.
func (m *Manager) SwitchToSpace(cpu int, dir Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[cpu] = dir
}

// GetCurrentSpace returns the address space currently active on cpu.
func (m *Manager) GetCurrentSpace(cpu int) Directory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[cpu]
}

// ForEachMapped walks every present mapping in dir. This plays the role of
// the original's directory-entry/page-table-entry double loop over
// indices 1..1023 (spec.md §4.12); because the simulator does not model
// the two-level structure directly, walking the space's page map is the
// faithful equivalent; there is no index-0 shared region to skip, since
// the simulator gives every process its own disjoint virtual map. The
// mappings are copied out under the read lock before fn runs so that a
// caller whose fn unmaps (RemoveProcess, tearing down the very space
// being walked) doesn't try to take space.mu's write lock while this
// goroutine still holds its read lock — sync.RWMutex isn't reentrant.
func (m *Manager) ForEachMapped(dir Directory, fn func(vaddr VirtAddr, paddr frame.PhysAddr)) {
	s := m.spaceFor(dir)
	if s == nil {
		return
	}
	s.mu.RLock()
	snapshot := make(map[VirtAddr]frame.PhysAddr, len(s.pages))
	for v, p := range s.pages {
		snapshot[v] = p.phys
	}
	s.mu.RUnlock()

	for v, p := range snapshot {
		fn(v, p)
	}
}
