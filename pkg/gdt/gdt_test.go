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

package gdt

import "testing"

func TestPerCPUStateIsIndependent(t *testing.T) {
	g := New(2)

	g.SetUserThreadObjectAddress(0, 0x1000)
	g.SetTssEsp0(0, 0x2000)
	g.SetUserThreadObjectAddress(1, 0x3000)
	g.SetTssEsp0(1, 0x4000)

	if got := g.UserThreadObjectAddress(0); got != 0x1000 {
		t.Fatalf("cpu 0 user thread object = %#x, want 0x1000", got)
	}
	if got := g.TssEsp0(0); got != 0x2000 {
		t.Fatalf("cpu 0 tss esp0 = %#x, want 0x2000", got)
	}
	if got := g.UserThreadObjectAddress(1); got != 0x3000 {
		t.Fatalf("cpu 1 user thread object = %#x, want 0x3000", got)
	}
	if got := g.TssEsp0(1); got != 0x4000 {
		t.Fatalf("cpu 1 tss esp0 = %#x, want 0x4000", got)
	}
}

func TestFreshTableReadsZero(t *testing.T) {
	g := New(1)
	if got := g.UserThreadObjectAddress(0); got != 0 {
		t.Fatalf("fresh user thread object = %#x, want 0", got)
	}
	if got := g.TssEsp0(0); got != 0 {
		t.Fatalf("fresh tss esp0 = %#x, want 0", got)
	}
}
