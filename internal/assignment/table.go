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
	"encoding/json"
)

// wireSliceAssignments is the UTF-8 JSON wire form of a SliceAssignments,
// matching the durable store's `data` column exactly:
// {"servers":["h:p",...],"assignments":[<int>,...]}.
type wireSliceAssignments struct {
	Servers     []string `json:"servers"`
	Assignments []int    `json:"assignments"`
}

func marshalSA(sa *SliceAssignments) ([]byte, error) {
	w := wireSliceAssignments{Servers: sa.Servers, Assignments: sa.Assignments}
	if w.Servers == nil {
		w.Servers = []string{}
	}
	if w.Assignments == nil {
		w.Assignments = []int{}
	}
	return json.Marshal(w)
}

func unmarshalSA(data []byte) (*SliceAssignments, error) {
	var w wireSliceAssignments
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &SliceAssignments{Servers: w.Servers, Assignments: w.Assignments}, nil
}

// emptySARecord is the payload installed by Init when no record exists
// yet, matching spec.md §6's literal `INSERT OR IGNORE` value.
const emptySARecord = `{"servers":[],"assignments":[]}`

// Table is the durable, linearizable singleton store for the current
// SliceAssignments, with optimistic-concurrency writes. Version is the
// millisecond wall-clock timestamp of the last committed write; it is
// the precondition token CAS callers must present.
type Table interface {
	// Get reads the single record. Returns ErrStoreUnavailable if the
	// store cannot be reached.
	Get(ctx context.Context) (sa *SliceAssignments, version int64, err error)

	// CAS atomically replaces the record's payload with sa and bumps
	// its version, but only if the stored version still equals
	// expectedVersion. committed is false (with no error) on a
	// version mismatch; the caller should re-read and not retry.
	CAS(ctx context.Context, sa *SliceAssignments, expectedVersion int64) (committed bool, newVersion int64, err error)

	// Init idempotently installs the empty record if none exists yet.
	Init(ctx context.Context) error

	// Ping verifies the store is reachable, for the admin /healthz
	// endpoint (health.Pinger).
	Ping(ctx context.Context) error
}
