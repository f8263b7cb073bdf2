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

package discovery

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/assignment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	addrs []string
	err   error
}

func (f fakeResolver) ResolveTXT(_ context.Context) ([]string, error) {
	return f.addrs, f.err
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestReconcileColdStartSingleWorker(t *testing.T) {
	d := &Discoverer{
		Resolver: fakeResolver{addrs: []string{"127.0.0.1:8080"}},
		Table:    assignment.NewMemTable(),
		Log:      testLogger(),
	}

	bs, err := d.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, bs.Backends, 1)
	assert.Equal(t, "127.0.0.1:8080", bs.Backends[0].Address)
	assert.Len(t, bs.Backends[0].Slices, assignment.NumSlices)
}

func TestReconcileScaleOutPreservesSurvivors(t *testing.T) {
	table := assignment.NewMemTable()
	d := &Discoverer{Resolver: fakeResolver{addrs: []string{"10.0.0.1:80"}}, Table: table, Log: testLogger()}

	bs, err := d.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, bs.Backends, 1)

	d.Resolver = fakeResolver{addrs: []string{"10.0.0.1:80", "10.0.0.2:80", "10.0.0.3:80", "10.0.0.4:80"}}
	bs2, err := d.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, bs2.Backends, 4)
	require.NotNil(t, bs2.ByAddress("10.0.0.1:80"))

	// Every slice is owned by exactly one worker; none vanished during
	// the reshuffle.
	total := 0
	for _, b := range bs2.Backends {
		total += len(b.Slices)
	}
	assert.Equal(t, assignment.NumSlices, total)
}

func TestReconcileDiscoveryFailureKeepsCallerRetryable(t *testing.T) {
	d := &Discoverer{
		Resolver: fakeResolver{err: errors.New("dns timeout")},
		Table:    assignment.NewMemTable(),
		Log:      testLogger(),
	}

	bs, err := d.Reconcile(context.Background())
	assert.Nil(t, bs)
	assert.ErrorIs(t, err, ErrDiscoveryFailure)
}

func TestReconcileEmptyDiscoveryDoesNotWipeFleet(t *testing.T) {
	table := assignment.NewMemTable()
	d := &Discoverer{Resolver: fakeResolver{addrs: []string{"10.0.0.1:80"}}, Table: table, Log: testLogger()}

	bs, err := d.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, bs.Backends, 1)

	// A subsequent cycle resolves no workers at all (DNS returned zero
	// answers, or every answer was malformed). This must be treated as
	// a discovery failure, not an instruction to empty the fleet.
	d.Resolver = fakeResolver{addrs: nil}
	bs2, err := d.Reconcile(context.Background())
	assert.Nil(t, bs2)
	assert.ErrorIs(t, err, ErrDiscoveryFailure)

	sa, _, err := table.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:80"}, sa.Servers, "the durable table must retain the prior fleet")
}

func TestReconcileAllMalformedAnswersIsDiscoveryFailure(t *testing.T) {
	d := &Discoverer{
		Resolver: fakeResolver{addrs: []string{"not-an-address", "also-bad"}},
		Table:    assignment.NewMemTable(),
		Log:      testLogger(),
	}

	bs, err := d.Reconcile(context.Background())
	assert.Nil(t, bs)
	assert.ErrorIs(t, err, ErrDiscoveryFailure)
}

func TestReconcileCASConflictPublishesWinner(t *testing.T) {
	table := assignment.NewMemTable()
	_, v0, err := table.Get(context.Background())
	require.NoError(t, err)

	winnerSA, err := assignment.Build([]string{"10.0.0.9:80"})
	require.NoError(t, err)
	committed, _, err := table.CAS(context.Background(), winnerSA, v0)
	require.NoError(t, err)
	require.True(t, committed)

	conflicts := 0
	d := &Discoverer{
		Resolver:      fakeResolver{addrs: []string{"10.0.0.1:80"}},
		Table:         &staleVersionTable{Table: table, stale: v0},
		Log:           testLogger(),
		OnCASConflict: func() { conflicts++ },
	}

	bs, err := d.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)
	require.Len(t, bs.Backends, 1)
	assert.Equal(t, "10.0.0.9:80", bs.Backends[0].Address)
}

// staleVersionTable wraps a Table but always reports the given stale
// version from Get, simulating a replica that read before another
// replica's concurrent commit.
type staleVersionTable struct {
	assignment.Table
	stale int64
}

func (s *staleVersionTable) Get(ctx context.Context) (*assignment.SliceAssignments, int64, error) {
	sa, _, err := s.Table.Get(ctx)
	return sa, s.stale, err
}
