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

// Package metrics provides Prometheus metrics for sliced.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slicedproxy/sliced/internal/build"
)

// Metrics holds the set of Prometheus collectors sliced registers against
// its private registry.
type Metrics struct {
	buildInfoGauge *prometheus.GaugeVec

	backendsGauge        prometheus.Gauge
	backendsHealthyGauge prometheus.Gauge
	assignmentVersion    prometheus.Gauge

	probeFailuresTotal    *prometheus.CounterVec
	casConflictsTotal     prometheus.Counter
	rebalanceMovesTotal   prometheus.Counter
	discoveryFailuresTotal prometheus.Counter
}

const (
	BuildInfoGauge = "sliced_build_info"

	BackendsGauge        = "sliced_backends"
	BackendsHealthyGauge = "sliced_backends_healthy"
	AssignmentVersion    = "sliced_assignment_version"

	ProbeFailuresTotal    = "sliced_probe_failures_total"
	CASConflictsTotal     = "sliced_cas_conflicts_total"
	RebalanceMovesTotal   = "sliced_rebalance_moves_total"
	DiscoveryFailuresTotal = "sliced_discovery_failures_total"
)

// NewMetrics creates a new set of metrics and registers them with the
// supplied registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := Metrics{
		buildInfoGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: BuildInfoGauge,
				Help: "Build information for sliced. Labels include the branch, git SHA, and version sliced was built from.",
			},
			[]string{"branch", "revision", "version"},
		),
		backendsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: BackendsGauge,
				Help: "Total number of backends discovered via DNS.",
			},
		),
		backendsHealthyGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: BackendsHealthyGauge,
				Help: "Number of backends currently considered healthy by the prober.",
			},
		),
		assignmentVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: AssignmentVersion,
				Help: "Timestamp, in milliseconds, of the currently published assignment table.",
			},
		),
		probeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ProbeFailuresTotal,
				Help: "Total number of probe cycles that left a backend unhealthy, by backend.",
			},
			[]string{"backend"},
		),
		casConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: CASConflictsTotal,
				Help: "Total number of compare-and-swap conflicts writing the assignment table.",
			},
		),
		rebalanceMovesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: RebalanceMovesTotal,
				Help: "Total number of slice moves proposed by the rebalancer and published.",
			},
		),
		discoveryFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: DiscoveryFailuresTotal,
				Help: "Total number of discovery cycles skipped because the DNS lookup or the assignment table failed.",
			},
		),
	}
	m.buildInfoGauge.WithLabelValues(build.Branch, build.Sha, build.Version).Set(1)
	m.register(registry)
	return &m
}

// register registers the Metrics with the supplied registry.
func (m *Metrics) register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.buildInfoGauge,
		m.backendsGauge,
		m.backendsHealthyGauge,
		m.assignmentVersion,
		m.probeFailuresTotal,
		m.casConflictsTotal,
		m.rebalanceMovesTotal,
		m.discoveryFailuresTotal,
	)
}

// SetBackends records the current size of the discovered backend set and
// how many of those backends are presently healthy.
func (m *Metrics) SetBackends(total, healthy int) {
	m.backendsGauge.Set(float64(total))
	m.backendsHealthyGauge.Set(float64(healthy))
}

// SetAssignmentVersion records the timestamp of the currently published
// assignment table.
func (m *Metrics) SetAssignmentVersion(timestampMillis int64) {
	m.assignmentVersion.Set(float64(timestampMillis))
}

// AddProbeFailure increments the failure counter for a single backend.
func (m *Metrics) AddProbeFailure(backend string) {
	m.probeFailuresTotal.WithLabelValues(backend).Inc()
}

// AddCASConflict increments the compare-and-swap conflict counter.
func (m *Metrics) AddCASConflict() {
	m.casConflictsTotal.Inc()
}

// AddRebalanceMoves increments the rebalance moves counter by n.
func (m *Metrics) AddRebalanceMoves(n int) {
	m.rebalanceMovesTotal.Add(float64(n))
}

// AddDiscoveryFailure increments the discovery failure counter.
func (m *Metrics) AddDiscoveryFailure() {
	m.discoveryFailuresTotal.Inc()
}

// Handler returns a http Handler for a metrics endpoint.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
