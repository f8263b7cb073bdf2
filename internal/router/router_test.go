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

package router

import (
	"testing"

	"github.com/slicedproxy/sliced/internal/assignment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteNoUpstreamWhenEmpty(t *testing.T) {
	r := New()
	_, err := r.Route([]byte("alice"))
	assert.ErrorIs(t, err, ErrNoUpstream)
}

func TestRouteFidelity(t *testing.T) {
	sa, err := assignment.Build([]string{"10.0.0.1:80", "10.0.0.2:80", "10.0.0.3:80"})
	require.NoError(t, err)

	bs := sa.ToBackends()
	r := New()
	r.Publish(bs)

	for _, key := range [][]byte{[]byte("alice"), []byte("bob"), []byte(""), []byte("a-much-longer-user-key-value")} {
		slice := Slice(key)
		want := bs.Lookup(slice)
		require.NotNil(t, want)

		got, err := r.Route(key)
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
}

func TestRouteSliceUnassigned(t *testing.T) {
	r := New()
	// A backend set with no slices claimed by anyone: every lookup must
	// report SliceUnassigned rather than panicking or silently picking
	// a backend.
	r.Publish(&assignment.BackendSet{Backends: []*assignment.Backend{
		{Address: "10.0.0.1:80", Slices: map[uint16]struct{}{}, Health: assignment.NewHealthStatus()},
	}})

	_, err := r.Route([]byte("anything"))
	assert.ErrorIs(t, err, ErrSliceUnassigned)
}

func TestRouteMissingUserKeyUsesEmptyBytes(t *testing.T) {
	sa, err := assignment.Build([]string{"10.0.0.1:80"})
	require.NoError(t, err)
	r := New()
	r.Publish(sa.ToBackends())

	b, err := r.Route(nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:80", b.Address)
}
