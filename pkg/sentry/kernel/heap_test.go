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

package kernel

import (
	"testing"

	"github.com/lokoxe/ghost-tasking/pkg/memory/paging"
)

func TestExtendHeapGrowsBrkAndMapsFreshFrames(t *testing.T) {
	k := NewTasking(testConfig(1))
	proc, err := k.CreateProcess()
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}

	start := proc.heap.Brk
	previousBrk, err := k.ExtendHeap(proc, 2)
	if err != nil {
		t.Fatalf("ExtendHeap: %v", err)
	}
	if previousBrk != start {
		t.Fatalf("ExtendHeap returned %#x, want the pre-growth break %#x", previousBrk, start)
	}
	if proc.heap.Brk != start+paging.VirtAddr(2*PageSize) {
		t.Fatalf("proc.heap.Brk = %#x, want %#x", proc.heap.Brk, start+paging.VirtAddr(2*PageSize))
	}

	for i := 0; i < 2; i++ {
		vaddr := start + paging.VirtAddr(i*PageSize)
		if _, ok := k.paging.VirtualToPhysical(proc.pageDirectory, vaddr); !ok {
			t.Fatalf("page %#x was not mapped by ExtendHeap", vaddr)
		}
	}
}

func TestExtendHeapQueryWithNoPagesLeavesBrkUnchanged(t *testing.T) {
	k := NewTasking(testConfig(1))
	proc, err := k.CreateProcess()
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	before := proc.heap.Brk

	brk, err := k.ExtendHeap(proc, 0)
	if err != nil {
		t.Fatalf("ExtendHeap(0): %v", err)
	}
	if brk != before {
		t.Fatalf("ExtendHeap(0) = %#x, want unchanged brk %#x", brk, before)
	}
}

func TestExtendHeapRefusesToExceedReservedWindow(t *testing.T) {
	k := NewTasking(testConfig(1))
	proc, err := k.CreateProcess()
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}

	if _, err := k.ExtendHeap(proc, heapReservedPages+1); err == nil {
		t.Fatalf("expected an error growing past the reserved heap window")
	}
}
