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

// Package router implements the stateless, read-only request router: it
// hashes the X-User routing key into a slice id and returns the single
// backend that currently owns it, consulting only the BackendSet snapshot
// most recently published by the control loop. It never blocks on DNS,
// the prober, or the assignment table.
package router

import (
	"errors"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/slicedproxy/sliced/internal/assignment"
)

// ErrNoUpstream is returned when the published backend set is empty.
var ErrNoUpstream = errors.New("router: no upstream backends available")

// ErrSliceUnassigned is returned when no backend in the published set
// claims the slice a key hashes to. This indicates a transient
// inconsistency during reconfiguration (spec.md §4.6).
var ErrSliceUnassigned = errors.New("router: slice unassigned")

// Router resolves a routing key to the backend that owns its slice. The
// zero value is unusable; construct with New. A Router is safe for
// concurrent use by many request-handling goroutines and is updated by a
// single writer (the control loop) via Publish.
type Router struct {
	current atomic.Pointer[assignment.BackendSet]
}

// New returns a Router with an empty, published backend set.
func New() *Router {
	r := &Router{}
	r.Publish(&assignment.BackendSet{})
	return r
}

// Publish atomically replaces the backend set the Router consults. Called
// by the control loop after each Discoverer cycle; never called from the
// request path.
func (r *Router) Publish(bs *assignment.BackendSet) {
	if bs == nil {
		bs = &assignment.BackendSet{}
	}
	r.current.Store(bs)
}

// Current returns the most recently published backend set, for the
// Prober and Rebalancer, which consult the same snapshot the Router
// routes against without re-deriving it from the assignment table.
func (r *Router) Current() *assignment.BackendSet {
	return r.current.Load()
}

// Slice computes the slice id a routing key hashes to, per spec.md §4.6:
// a 64-bit default hash over the key, reduced mod NumSlices.
func Slice(key []byte) uint16 {
	return uint16(xxhash.Sum64(key) % assignment.NumSlices)
}

// Route returns the backend that owns the slice key hashes to, consulting
// the most recently published BackendSet. Missing X-User headers route
// with an empty key, per spec.md §4.6 step 1.
func (r *Router) Route(key []byte) (*assignment.Backend, error) {
	bs := r.current.Load()
	if bs == nil || len(bs.Backends) == 0 {
		return nil, ErrNoUpstream
	}

	b := bs.Lookup(Slice(key))
	if b == nil {
		return nil, ErrSliceUnassigned
	}
	return b, nil
}
