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

package controlloop

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/assignment"
	"github.com/slicedproxy/sliced/internal/config"
	"github.com/slicedproxy/sliced/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ addrs []string }

func (f fakeResolver) ResolveTXT(_ context.Context) ([]string, error) {
	return f.addrs, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDiscoverOnceRetainsHealthAcrossCycles(t *testing.T) {
	table := assignment.NewMemTable()
	cl := New(config.Default(9000, 9001), table, fakeResolver{addrs: []string{"10.0.0.1:80"}}, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())

	cl.discoverOnce(context.Background())
	b := cl.Router.Current().ByAddress("10.0.0.1:80")
	require.NotNil(t, b)

	wire := map[string]assignment.SliceUsage{"0": {Load: 42}}
	b.Health.RecordResult(true, &assignment.Usage{Slices: wire}, 1, 1)

	// A second discovery cycle, over the same worker set, must not
	// wipe out the telemetry just recorded.
	cl.discoverOnce(context.Background())
	b2 := cl.Router.Current().ByAddress("10.0.0.1:80")
	require.NotNil(t, b2)
	snap := b2.Health.Snapshot()
	require.NotNil(t, snap.Usage)
	assert.Equal(t, uint32(42), snap.Usage.Slices["0"].Load)
}

func TestRebalanceOnceAppliesMovesAndPublishes(t *testing.T) {
	table := assignment.NewMemTable()
	cl := New(config.Default(9000, 9001), table,
		fakeResolver{addrs: []string{"10.0.0.1:80", "10.0.0.2:80"}},
		metrics.NewMetrics(prometheus.NewRegistry()), testLogger())

	cl.discoverOnce(context.Background())
	_, discovered, err := table.Get(context.Background())
	require.NoError(t, err)

	bs := cl.Router.Current()
	hot := bs.ByAddress("10.0.0.1:80")
	cold := bs.ByAddress("10.0.0.2:80")
	require.NotNil(t, hot)
	require.NotNil(t, cold)

	hotWire := make(map[string]assignment.SliceUsage)
	for s := range hot.Slices {
		hotWire[strconv.Itoa(int(s))] = assignment.SliceUsage{Load: 1000}
	}
	coldWire := make(map[string]assignment.SliceUsage)
	for s := range cold.Slices {
		coldWire[strconv.Itoa(int(s))] = assignment.SliceUsage{Load: 1}
	}
	hot.Health.RecordResult(true, &assignment.Usage{Slices: hotWire}, 1, 1)
	cold.Health.RecordResult(true, &assignment.Usage{Slices: coldWire}, 1, 1)

	cl.rebalanceOnce(context.Background())

	_, version, err := table.Get(context.Background())
	require.NoError(t, err)
	assert.Greater(t, version, discovered)

	// The single hot server sheds exactly one slice in the newly
	// published set.
	moved := cl.Router.Current().ByAddress("10.0.0.1:80")
	require.NotNil(t, moved)
	assert.Len(t, moved.Slices, len(hot.Slices)-1)
}
