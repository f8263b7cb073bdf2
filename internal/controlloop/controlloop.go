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

// Package controlloop schedules the Discoverer, Prober, and Rebalancer
// at their configured frequencies and owns the single BackendSet the
// Router reads, per spec.md §4.7. It is the one piece that ties the
// otherwise-independent coordinator components to workgroup.Group, the
// same "construct a service, add it to the group" idiom the teacher uses
// for its HTTP services.
package controlloop

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/assignment"
	"github.com/slicedproxy/sliced/internal/config"
	"github.com/slicedproxy/sliced/internal/discovery"
	"github.com/slicedproxy/sliced/internal/metrics"
	"github.com/slicedproxy/sliced/internal/prober"
	"github.com/slicedproxy/sliced/internal/rebalance"
	"github.com/slicedproxy/sliced/internal/router"
	"github.com/slicedproxy/sliced/internal/workgroup"
)

// ControlLoop wires the Discoverer, Prober, and rebalance-and-commit step
// onto a shared workgroup.Group at their configured cadences.
type ControlLoop struct {
	Config     config.Config
	Table      assignment.Table
	Discoverer *discovery.Discoverer
	Prober     *prober.Prober
	Router     *router.Router
	Metrics    *metrics.Metrics
	Log        logrus.FieldLogger
}

// New constructs a ControlLoop ready to be Register-ed onto a
// workgroup.Group. The Router returned is shared with the proxy listener.
func New(cfg config.Config, table assignment.Table, resolver discovery.Resolver, m *metrics.Metrics, log logrus.FieldLogger) *ControlLoop {
	rt := router.New()

	cl := &ControlLoop{
		Config:  cfg,
		Table:   table,
		Router:  rt,
		Metrics: m,
		Log:     log,
	}

	cl.Discoverer = &discovery.Discoverer{
		Resolver:      resolver,
		Table:         table,
		Log:           log.WithField("component", "discovery"),
		OnCASConflict: m.AddCASConflict,
	}
	cl.Prober = prober.New(
		log.WithField("component", "prober"),
		cfg.ConnectDeadline(),
		cfg.ReadDeadline(),
		cfg.SuccessThreshold,
		cfg.FailureThreshold,
	)

	return cl
}

// Register adds the Discoverer, Prober, and Rebalancer loops to group,
// each on its own ticker honoring the configured interval. Any loop whose
// interval resolves to zero (an explicitly disabled timeout.Setting) is
// skipped, per spec.md §6's "-"/"infinity" disable convention.
func (cl *ControlLoop) Register(group *workgroup.Group) {
	if interval := cl.Config.UpdateInterval(); interval > 0 {
		group.AddContext(func(ctx context.Context) error {
			cl.runDiscoveryLoop(ctx, interval)
			return nil
		})
	}
	if interval := cl.Config.HealthCheckInterval(); interval > 0 {
		group.AddContext(func(ctx context.Context) error {
			cl.runProbeLoop(ctx, interval)
			return nil
		})
	}
	if interval := cl.Config.RebalanceInterval(); interval > 0 {
		group.AddContext(func(ctx context.Context) error {
			cl.runRebalanceLoop(ctx, interval)
			return nil
		})
	}
}

func (cl *ControlLoop) runDiscoveryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cl.discoverOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cl.discoverOnce(ctx)
		}
	}
}

func (cl *ControlLoop) discoverOnce(ctx context.Context) {
	bs, err := cl.Discoverer.Reconcile(ctx)
	if err != nil {
		// DiscoveryFailure / StoreUnavailable: skip this cycle, keep
		// serving whatever was last published. Never empty the
		// backend set over a single failure, per spec.md §7.
		cl.Metrics.AddDiscoveryFailure()
		cl.Log.WithError(err).Debug("controlloop: discovery cycle skipped")
		return
	}

	carryOverHealth(bs, cl.Router.Current())
	cl.Router.Publish(bs)

	healthy := 0
	for _, b := range bs.Backends {
		if b.Health.Snapshot().Healthy {
			healthy++
		}
	}
	cl.Metrics.SetBackends(len(bs.Backends), healthy)
}

func (cl *ControlLoop) runProbeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bs := cl.Router.Current()
			cl.Prober.CheckAll(ctx, bs)
			cl.recordProbeFailures(bs)
		}
	}
}

func (cl *ControlLoop) recordProbeFailures(bs *assignment.BackendSet) {
	if bs == nil {
		return
	}
	healthy := 0
	for _, b := range bs.Backends {
		snap := b.Health.Snapshot()
		if snap.Healthy {
			healthy++
		} else {
			cl.Metrics.AddProbeFailure(b.Address)
		}
	}
	cl.Metrics.SetBackends(len(bs.Backends), healthy)
}

func (cl *ControlLoop) runRebalanceLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cl.rebalanceOnce(ctx)
		}
	}
}

// rebalanceOnce proposes moves over the currently published backend set,
// applies them to the latest SliceAssignments, and commits via CAS. A
// commit conflict is discarded without retry, per spec.md §4.7: the next
// cycle re-reads and re-plans against whatever won.
func (cl *ControlLoop) rebalanceOnce(ctx context.Context) {
	bs := cl.Router.Current()
	if bs == nil {
		return
	}

	moves := rebalance.FindMoves(bs.Backends)
	if len(moves) == 0 {
		return
	}

	sa, version, err := cl.Table.Get(ctx)
	if err != nil {
		cl.Log.WithError(err).Debug("controlloop: rebalance skipped, store unavailable")
		return
	}

	if err := sa.Apply(moves); err != nil {
		cl.Log.WithError(err).Warn("controlloop: rebalance proposed a move against an unknown address")
		return
	}

	committed, _, err := cl.Table.CAS(ctx, sa, version)
	if err != nil {
		cl.Log.WithError(err).Debug("controlloop: rebalance commit failed, store unavailable")
		return
	}
	if !committed {
		cl.Metrics.AddCASConflict()
		cl.Log.Debug("controlloop: rebalance commit lost CAS race, discarding")
		return
	}

	newBS := sa.ToBackends()
	carryOverHealth(newBS, bs)
	cl.Router.Publish(newBS)
	cl.Metrics.AddRebalanceMoves(len(moves))
}

// carryOverHealth re-attaches each surviving backend's existing
// HealthStatus onto the freshly rebuilt set, by address. SA replaces
// BackendSets wholesale on every cycle (spec.md §9's "weak handles"
// design note), but a backend's identity - and therefore its telemetry
// and consecutive-threshold counters - only resets when it leaves and
// re-enters the active set, per spec.md §3's lifecycle rule; a backend
// that was present in prev keeps probing from where it left off.
func carryOverHealth(fresh, prev *assignment.BackendSet) {
	if fresh == nil || prev == nil {
		return
	}
	for _, b := range fresh.Backends {
		if old := prev.ByAddress(b.Address); old != nil {
			b.Health = old.Health
		}
	}
}
