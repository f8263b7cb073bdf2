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
	"crypto/sha1" // nolint:gosec -- ketama ring hashing, not a security boundary
	"encoding/binary"
	"fmt"
	"sort"
)

// pointsPerBucket is the number of ring entries placed per worker address
// for a uniform (weight-1) Ketama continuum.
const pointsPerBucket = 160

// ring is a Ketama-compatible consistent-hash continuum: each worker
// address owns pointsPerBucket points on a 32-bit circle, keyed by the
// first four bytes of SHA-1("address#idx"). Lookup hashes the supplied
// key the same way and returns the owner of the next point clockwise.
type ring struct {
	points []ringPoint
}

type ringPoint struct {
	hash uint32
	addr string
}

// buildRing constructs a Ketama ring over addrs, which must already be
// sorted, deduplicated, and IPv4-only. An empty addrs returns
// ErrNoEligibleWorkers.
func buildRing(addrs []string) (*ring, error) {
	if len(addrs) == 0 {
		return nil, ErrNoEligibleWorkers
	}

	points := make([]ringPoint, 0, len(addrs)*pointsPerBucket)
	for _, addr := range addrs {
		for idx := 0; idx < pointsPerBucket; idx++ {
			key := fmt.Sprintf("%s#%d", addr, idx)
			digest := sha1.Sum([]byte(key)) // nolint:gosec
			points = append(points, ringPoint{
				hash: binary.LittleEndian.Uint32(digest[0:4]),
				addr: addr,
			})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].hash != points[j].hash {
			return points[i].hash < points[j].hash
		}
		return points[i].addr < points[j].addr
	})

	return &ring{points: points}, nil
}

// lookup returns the worker address owning key on the continuum.
func (r *ring) lookup(key []byte) string {
	digest := sha1.Sum(key) // nolint:gosec
	h := binary.LittleEndian.Uint32(digest[0:4])

	i := sort.Search(len(r.points), func(i int) bool {
		return r.points[i].hash >= h
	})
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].addr
}

// sliceKey returns the lookup key Ketama uses for a given slice index, the
// single byte s as an unsigned 8-bit value, per the wire-compatible ring
// convention.
func sliceKey(s int) []byte {
	return []byte{byte(s)}
}
