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

func TestThreadWithNoTLSMasterGetsAnEmptyCopy(t *testing.T) {
	k := NewTasking(testConfig(1))
	proc, err := k.CreateProcess()
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	u, err := k.CreateThread(proc, SecurityLevelApplication, ThreadTypeDefault, 0x40001000)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	u.mu.Lock()
	tc := u.tlsCopy
	u.mu.Unlock()
	if tc.Start != 0 || tc.End != 0 {
		t.Fatalf("expected a zeroed TLS copy with no master installed, got %+v", tc)
	}
}

func TestPrepareThreadLocalStorageMapsACopyPerThread(t *testing.T) {
	k := NewTasking(testConfig(1))
	proc, err := k.CreateProcess()
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	proc.SetTLSMaster(TLSMaster{
		Location:  0x40000000,
		CopySize:  64,
		TotalSize: 128,
		Alignment: 16,
	})

	u, err := k.CreateThread(proc, SecurityLevelApplication, ThreadTypeDefault, 0x40001000)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	u.mu.Lock()
	tc := u.tlsCopy
	u.mu.Unlock()
	if tc.End-tc.Start != paging.VirtAddr(128) {
		t.Fatalf("TLS copy span = %d bytes, want 128", tc.End-tc.Start)
	}
	if tc.UserThreadObject != tc.End {
		t.Fatalf("UserThreadObject = %#x, want it to sit right past the copy at %#x", tc.UserThreadObject, tc.End)
	}

	if _, ok := k.paging.VirtualToPhysical(proc.pageDirectory, tc.Start); !ok {
		t.Fatalf("expected the TLS window's first page to be mapped")
	}
}

func TestKernelThreadNeverGetsATLSCopy(t *testing.T) {
	k := NewTasking(testConfig(1))
	proc, err := k.CreateProcess()
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	proc.SetTLSMaster(TLSMaster{TotalSize: 128})

	kt, err := k.CreateThread(proc, SecurityLevelKernel, ThreadTypeDefault, 0x1000)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	kt.mu.Lock()
	tc := kt.tlsCopy
	kt.mu.Unlock()
	if tc.Start != 0 || tc.End != 0 {
		t.Fatalf("expected a kernel thread to never receive a TLS copy, got %+v", tc)
	}
}
