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

package fsproc

import "testing"

func TestCreateThenRemove(t *testing.T) {
	tbl := New()
	tbl.ProcessCreate(42)
	if !tbl.Exists(42) {
		t.Fatalf("expected pid 42 to exist after ProcessCreate")
	}
	tbl.ProcessRemove(42)
	if tbl.Exists(42) {
		t.Fatalf("expected pid 42 to be gone after ProcessRemove")
	}
}

func TestRemoveOfUnknownPidIsNoOp(t *testing.T) {
	tbl := New()
	tbl.ProcessRemove(7)
	if tbl.Exists(7) {
		t.Fatalf("removing a never-created pid must not create a record")
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	tbl := New()
	tbl.ProcessCreate(1)
	tbl.ProcessCreate(1)
	if !tbl.Exists(1) {
		t.Fatalf("expected pid 1 to exist after two ProcessCreate calls")
	}
	tbl.ProcessRemove(1)
	if tbl.Exists(1) {
		t.Fatalf("expected pid 1 to be gone after a single ProcessRemove")
	}
}
