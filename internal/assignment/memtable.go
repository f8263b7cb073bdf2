// Copyright Project Contour Authors
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

package assignment

import (
	"context"
	"sync"
	"time"
)

// MemTable is a mutex-guarded, in-memory Table implementation. It backs
// unit tests that exercise CAS semantics without standing up sqlite, and
// the multi-writer CAS race property test in spec.md §8.
type MemTable struct {
	mu      sync.Mutex
	version int64
	sa      *SliceAssignments
}

// NewMemTable returns an initialized, empty MemTable.
func NewMemTable() *MemTable {
	return &MemTable{sa: &SliceAssignments{Servers: []string{}, Assignments: make([]int, NumSlices)}}
}

func (m *MemTable) Get(_ context.Context) (*SliceAssignments, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSA(m.sa), m.version, nil
}

func (m *MemTable) CAS(_ context.Context, sa *SliceAssignments, expectedVersion int64) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.version != expectedVersion {
		return false, expectedVersion, nil
	}

	newVersion := nowMillis()
	if newVersion <= m.version {
		newVersion = m.version + 1
	}

	m.sa = cloneSA(sa)
	m.version = newVersion
	return true, newVersion, nil
}

func (m *MemTable) Init(ctx context.Context) error {
	return nil
}

func (m *MemTable) Ping(_ context.Context) error {
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func cloneSA(sa *SliceAssignments) *SliceAssignments {
	servers := make([]string, len(sa.Servers))
	copy(servers, sa.Servers)
	assignments := make([]int, len(sa.Assignments))
	copy(assignments, sa.Assignments)
	return &SliceAssignments{Servers: servers, Assignments: assignments}
}
