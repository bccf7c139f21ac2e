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

// Package fsproc is a stand-in for the filesystem's per-process table
// (spec.md §6: processCreate/processRemove). The real filesystem module
// keeps file descriptor tables and working-directory state per PID; this
// package only tracks existence, which is all the tasking core's contract
// requires of it.
package fsproc

import (
	"sync"

	"github.com/lokoxe/ghost-tasking/pkg/klog"
)

// Table is the per-process record keeper.
type Table struct {
	mu      sync.Mutex
	records map[uint32]struct{}
}

// New returns an empty table.
func New() *Table {
	return &Table{records: make(map[uint32]struct{})}
}

// ProcessCreate registers pid as having filesystem state.
func (t *Table) ProcessCreate(pid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[pid] = struct{}{}
	klog.Debugf("fsproc: created process record for pid %d", pid)
}

// ProcessRemove drops pid's filesystem state.
func (t *Table) ProcessRemove(pid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[pid]; !ok {
		klog.Infof("fsproc: tried to remove non-existing process %d", pid)
		return
	}
	delete(t.records, pid)
	klog.Debugf("fsproc: removed process record for pid %d", pid)
}

// Exists reports whether pid has an active record.
func (t *Table) Exists(pid uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[pid]
	return ok
}
