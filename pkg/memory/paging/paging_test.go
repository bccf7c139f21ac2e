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

package paging

import (
	"testing"

	"github.com/lokoxe/ghost-tasking/pkg/memory/frame"
)

func TestMapUnmapRoundTrip(t *testing.T) {
	m := NewManager(1)
	const dir = Directory(0x1000)
	m.NewSpace(dir)

	m.MapPage(dir, 0x40000000, 0x5000, 0, UserPage)
	phys, ok := m.VirtualToPhysical(dir, 0x40000000)
	if !ok || phys != 0x5000 {
		t.Fatalf("VirtualToPhysical = (%#x, %v), want (0x5000, true)", phys, ok)
	}

	m.UnmapPage(dir, 0x40000000)
	if _, ok := m.VirtualToPhysical(dir, 0x40000000); ok {
		t.Fatalf("expected the mapping to be gone after UnmapPage")
	}
}

func TestVirtualToPhysicalOnUnknownSpaceReportsAbsent(t *testing.T) {
	m := NewManager(1)
	if _, ok := m.VirtualToPhysical(Directory(0xdead), 0x1000); ok {
		t.Fatalf("expected a never-created directory to report no mapping")
	}
}

func TestDestroySpaceForgetsMappings(t *testing.T) {
	m := NewManager(1)
	const dir = Directory(0x2000)
	m.NewSpace(dir)
	m.MapPage(dir, 0x40000000, 0x6000, 0, UserPage)

	m.DestroySpace(dir)
	if _, ok := m.VirtualToPhysical(dir, 0x40000000); ok {
		t.Fatalf("expected no mapping once the space has been destroyed")
	}

	// A page mapped against a destroyed (never recreated) directory is
	// silently dropped rather than panicking; callers are expected to
	// have walked and dereferenced every mapping before destroying it.
	m.MapPage(dir, 0x40000000, 0x7000, 0, UserPage)
	if _, ok := m.VirtualToPhysical(dir, 0x40000000); ok {
		t.Fatalf("MapPage against a destroyed space should be a no-op")
	}
}

func TestCurrentSpacePerCPU(t *testing.T) {
	m := NewManager(2)
	m.SwitchToSpace(0, Directory(0x1000))
	m.SwitchToSpace(1, Directory(0x2000))

	if got := m.GetCurrentSpace(0); got != 0x1000 {
		t.Fatalf("cpu 0 current space = %#x, want 0x1000", got)
	}
	if got := m.GetCurrentSpace(1); got != 0x2000 {
		t.Fatalf("cpu 1 current space = %#x, want 0x2000", got)
	}
}

func TestForEachMappedVisitsEveryPage(t *testing.T) {
	m := NewManager(1)
	const dir = Directory(0x3000)
	m.NewSpace(dir)

	want := map[VirtAddr]frame.PhysAddr{
		0x40000000: 0x10000,
		0x40001000: 0x11000,
		0x40002000: 0x12000,
	}
	for v, p := range want {
		m.MapPage(dir, v, p, 0, UserPage)
	}

	got := make(map[VirtAddr]frame.PhysAddr)
	m.ForEachMapped(dir, func(v VirtAddr, p frame.PhysAddr) {
		got[v] = p
	})

	if len(got) != len(want) {
		t.Fatalf("ForEachMapped visited %d pages, want %d", len(got), len(want))
	}
	for v, p := range want {
		if got[v] != p {
			t.Fatalf("page %#x mapped to %#x, want %#x", v, got[v], p)
		}
	}
}
