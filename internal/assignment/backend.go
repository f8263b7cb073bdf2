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

// Backend is the derived, per-worker view the Router, Prober, and
// Rebalancer all consult: an address, the set of slices it currently
// owns, and its mutable health/telemetry state.
type Backend struct {
	Address string
	Slices  map[uint16]struct{}
	Health  *HealthStatus
}

// OwnsSlice reports whether this backend currently owns slice s.
func (b *Backend) OwnsSlice(s uint16) bool {
	_, ok := b.Slices[s]
	return ok
}

// BackendSet is an ordered (by address), atomically-published snapshot
// of the current backends. It is the value type passed between the
// Discoverer, Router, Prober, and Rebalancer — replaced wholesale on
// every Discoverer cycle, never mutated in place.
type BackendSet struct {
	Backends []*Backend
}

// Lookup returns the backend owning slice s, or nil if no backend claims
// it.
func (bs *BackendSet) Lookup(s uint16) *Backend {
	if bs == nil {
		return nil
	}
	for _, b := range bs.Backends {
		if b.OwnsSlice(s) {
			return b
		}
	}
	return nil
}

// ByAddress returns the backend at the given address, or nil.
func (bs *BackendSet) ByAddress(addr string) *Backend {
	if bs == nil {
		return nil
	}
	for _, b := range bs.Backends {
		if b.Address == addr {
			return b
		}
	}
	return nil
}
