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
	"net"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/assignment"
)

// ErrDiscoveryFailure wraps a DNS lookup error, or an empty/malformed
// result, per spec.md §7. The Discoverer never empties the published
// backend set over a single failure: the caller keeps serving the last
// successfully published set.
var ErrDiscoveryFailure = errors.New("discovery: worker fleet lookup failed")

// Discoverer reconciles the authoritative worker list from DNS against
// the durable AssignmentTable, and hands the resulting backend set back
// to the control loop for publication.
type Discoverer struct {
	Resolver Resolver
	Table    assignment.Table
	Log      logrus.FieldLogger

	// OnCASConflict, if set, is called whenever a CAS attempt loses a
	// race against another replica, for metrics.
	OnCASConflict func()
}

// Reconcile performs one Discoverer cycle, per spec.md §4.4:
//  1. resolve the worker fleet from DNS;
//  2. read the current (SA, version) from the durable table;
//  3. build or update SA against the discovered servers;
//  4. attempt to commit via CAS; on conflict, re-read and publish the
//     winner rather than retrying;
//  5. return the resulting backend set.
//
// A DNS failure, an empty/all-malformed TXT result, or a store failure at
// any step returns ErrDiscoveryFailure or assignment.ErrStoreUnavailable
// and a nil set; the caller must retain whatever it last published rather
// than publish an empty fleet.
func (d *Discoverer) Reconcile(ctx context.Context) (*assignment.BackendSet, error) {
	raw, err := d.Resolver.ResolveTXT(ctx)
	if err != nil {
		d.Log.WithError(err).Warn("discovery: TXT lookup failed")
		return nil, ErrDiscoveryFailure
	}

	servers := parseWorkerAddrs(raw, d.Log)
	if len(servers) == 0 {
		d.Log.Warn("discovery: TXT lookup returned no eligible worker addresses")
		return nil, ErrDiscoveryFailure
	}

	saCurrent, version, err := d.Table.Get(ctx)
	if err != nil {
		d.Log.WithError(err).Warn("discovery: assignment table unreachable")
		return nil, assignment.ErrStoreUnavailable
	}

	var saNew *assignment.SliceAssignments
	if len(saCurrent.Servers) == 0 {
		saNew, err = assignment.Build(servers)
		if err != nil {
			d.Log.WithError(err).Warn("discovery: no eligible workers to build from")
			return nil, ErrDiscoveryFailure
		}
	} else {
		saNew = saCurrent
		if err := saNew.Update(servers); err != nil {
			d.Log.WithError(err).Warn("discovery: no eligible workers to update to")
			return nil, ErrDiscoveryFailure
		}
	}

	committed, _, err := d.Table.CAS(ctx, saNew, version)
	if err != nil {
		d.Log.WithError(err).Warn("discovery: CAS failed")
		return nil, assignment.ErrStoreUnavailable
	}

	published := saNew
	if !committed {
		if d.OnCASConflict != nil {
			d.OnCASConflict()
		}
		d.Log.Debug("discovery: lost CAS race, re-reading winner")
		winner, _, err := d.Table.Get(ctx)
		if err != nil {
			d.Log.WithError(err).Warn("discovery: re-read after CAS conflict failed")
			return nil, assignment.ErrStoreUnavailable
		}
		published = winner
	}

	return published.ToBackends(), nil
}

// parseWorkerAddrs validates each raw "address:port" TXT answer, dropping
// (and logging) anything that doesn't parse as host:port. IPv4 filtering
// itself happens later, inside assignment.Build/Update.
func parseWorkerAddrs(raw []string, log logrus.FieldLogger) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			log.WithField("entry", s).Warn("discovery: dropping malformed TXT answer")
			continue
		}
		out = append(out, s)
	}
	return out
}
