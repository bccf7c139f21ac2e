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

package vrange

import "testing"

const pageSize = 4096

func TestAllocateIsLowestAddressFirstFit(t *testing.T) {
	p := New(pageSize)
	p.AddRange(0x1000, 0x10000)

	a, err := p.Allocate(1, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a != 0x1000 {
		t.Fatalf("first allocation = %#x, want 0x1000", a)
	}

	b, err := p.Allocate(1, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if b != a+pageSize {
		t.Fatalf("second allocation = %#x, want %#x", b, a+pageSize)
	}
}

func TestAllocateExhaustionReturnsError(t *testing.T) {
	p := New(pageSize)
	p.AddRange(0, pageSize)

	if _, err := p.Allocate(1, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := p.Allocate(1, 0); err == nil {
		t.Fatalf("expected an error once the range is fully allocated")
	}
}

func TestAllocateNonPositivePagesRoundsUpToOne(t *testing.T) {
	p := New(pageSize)
	p.AddRange(0, pageSize)

	a, err := p.Allocate(0, 0)
	if err != nil {
		t.Fatalf("Allocate(0, ...): %v", err)
	}
	if a != 0 {
		t.Fatalf("Allocate(0, ...) = %#x, want 0", a)
	}
	// The single page is now taken; a second allocation of any size must
	// fail, confirming pages<=0 reserved exactly one page rather than zero.
	if _, err := p.Allocate(1, 0); err == nil {
		t.Fatalf("expected the pool to be exhausted after Allocate(0, ...)")
	}
}

func TestFreeCoalescesWithBothNeighbors(t *testing.T) {
	p := New(pageSize)
	p.AddRange(0, 3*pageSize)

	a, err := p.Allocate(1, 0)
	if err != nil {
		t.Fatalf("Allocate a: %v", err)
	}
	b, err := p.Allocate(1, 0)
	if err != nil {
		t.Fatalf("Allocate b: %v", err)
	}
	c, err := p.Allocate(1, 0)
	if err != nil {
		t.Fatalf("Allocate c: %v", err)
	}

	p.Free(a)
	p.Free(c)
	p.Free(b)

	// All three pages returned and coalesced back into a single span:
	// allocating all three pages in one request must now succeed.
	whole, err := p.Allocate(3, 0)
	if err != nil {
		t.Fatalf("Allocate(3, ...) after freeing every page: %v", err)
	}
	if whole != 0 {
		t.Fatalf("Allocate(3, ...) = %#x, want 0", whole)
	}
}

func TestFreeOfUnknownStartIsNoOp(t *testing.T) {
	p := New(pageSize)
	p.AddRange(0, pageSize)
	// Freeing an address never returned by Allocate must not panic and
	// must not grow the free space available.
	p.Free(Addr(0xdeadb000))

	if _, err := p.Allocate(1, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := p.Allocate(1, 0); err == nil {
		t.Fatalf("expected the pool to still be exhausted after the bogus Free")
	}
}

func TestPartialAllocationLeavesRemainderFree(t *testing.T) {
	p := New(pageSize)
	p.AddRange(0, 4*pageSize)

	a, err := p.Allocate(1, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a != 0 {
		t.Fatalf("Allocate = %#x, want 0", a)
	}
	// Three pages remain; a second request for exactly three must still
	// fit starting right after the first allocation.
	b, err := p.Allocate(3, 0)
	if err != nil {
		t.Fatalf("Allocate(3, ...): %v", err)
	}
	if b != pageSize {
		t.Fatalf("Allocate(3, ...) = %#x, want %#x", b, Addr(pageSize))
	}
}
