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

package frame

import (
	"sync"
	"testing"
)

func TestAllocateAdvancesThroughBitmap(t *testing.T) {
	a := NewAllocator(0, 3)

	first, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != 0 {
		t.Fatalf("first frame = %#x, want 0", first)
	}
	second, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != PageSize {
		t.Fatalf("second frame = %#x, want %#x", second, PageSize)
	}
	if got := a.Used(); got != 2 {
		t.Fatalf("Used() = %d, want 2", got)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	a := NewAllocator(0, 2)
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := a.Allocate(); err == nil {
		t.Fatalf("expected an error once every frame is in use")
	}
}

func TestMarkFreeReturnsFrameToPool(t *testing.T) {
	a := NewAllocator(0, 1)
	p, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a.MarkFree(p)
	if got := a.Used(); got != 0 {
		t.Fatalf("Used() after MarkFree = %d, want 0", got)
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate after MarkFree: %v", err)
	}
}

func TestMarkFreeToleratesRedundantOrOutOfRangeFrees(t *testing.T) {
	a := NewAllocator(PageSize, 2)
	// Never allocated, below base, and above the tracked region: all
	// three must be silent no-ops rather than panics or negative counts.
	a.MarkFree(PageSize)
	a.MarkFree(0)
	a.MarkFree(PageSize * 100)
	if got := a.Used(); got != 0 {
		t.Fatalf("Used() after redundant frees = %d, want 0", got)
	}

	p, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a.MarkFree(p)
	a.MarkFree(p)
	if got := a.Used(); got != 0 {
		t.Fatalf("Used() after double free = %d, want 0", got)
	}
}

func TestAllocatorConcurrentUseNeverDoubleIssuesAFrame(t *testing.T) {
	a := NewAllocator(0, 64)
	seen := make(chan PhysAddr, 64)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := a.Allocate()
			if err != nil {
				t.Errorf("Allocate: %v", err)
				return
			}
			seen <- p
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[PhysAddr]bool)
	for p := range seen {
		if unique[p] {
			t.Fatalf("frame %#x issued twice", p)
		}
		unique[p] = true
	}
	if len(unique) != 64 {
		t.Fatalf("got %d distinct frames, want 64", len(unique))
	}
}
