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

// Package rebalance implements the Rebalancer: a pure function over a
// snapshot of backends-with-telemetry that proposes a bounded list of
// slice moves to reduce load imbalance.
package rebalance

import (
	"sort"
	"strconv"

	"github.com/slicedproxy/sliced/internal/assignment"
)

// MaxMovesPerCycle bounds the number of moves a single FindMoves call may
// propose.
const MaxMovesPerCycle = 3

// OverloadThreshold is the load-to-mean ratio above which a server is
// considered hot.
const OverloadThreshold = 1.20

type serverState struct {
	addr      string
	load      uint32
	sliceLoad map[uint16]uint32
}

// FindMoves proposes up to MaxMovesPerCycle slice reassignments over the
// given backend set. Backends without a telemetry sample are excluded
// from consideration entirely (neither as a hot source nor a move
// target). All tie-breaks are stable on (address lex order, slice id
// ascending) so replicas computing over the same snapshot agree. Moves
// whose benefit (system imbalance before minus after) is not strictly
// positive are dropped, per spec.md §9's resolved open question.
func FindMoves(backends []*assignment.Backend) []assignment.Move {
	states := make(map[string]*serverState)
	var order []string
	for _, b := range backends {
		snap := b.Health.Snapshot()
		if snap.Usage == nil {
			continue
		}
		sl := make(map[uint16]uint32)
		var total uint32
		for key, su := range snap.Usage.Slices {
			id, err := strconv.ParseUint(key, 10, 16)
			if err != nil {
				continue
			}
			sl[uint16(id)] = su.Load
			total += su.Load
		}
		states[b.Address] = &serverState{addr: b.Address, load: total, sliceLoad: sl}
		order = append(order, b.Address)
	}

	if len(states) < 2 {
		return nil
	}
	sort.Strings(order)

	avg := meanLoad(states, order)
	threshold := float64(avg) * OverloadThreshold

	var hot []string
	for _, addr := range order {
		if float64(states[addr].load) > threshold {
			hot = append(hot, addr)
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		if states[hot[i]].load != states[hot[j]].load {
			return states[hot[i]].load > states[hot[j]].load
		}
		return hot[i] < hot[j]
	})

	type candidate struct {
		move    assignment.Move
		benefit float64
	}
	var candidates []candidate

	for _, hotAddr := range hot {
		if len(candidates) >= MaxMovesPerCycle {
			break
		}

		hotState := states[hotAddr]
		bigSlice, bigLoad, ok := largestSlice(hotState)
		if !ok {
			continue
		}

		targetAddr, ok := leastLoadedOther(states, order, hotAddr)
		if !ok {
			continue
		}

		before := systemImbalance(states, order)

		hotState.load -= bigLoad
		delete(hotState.sliceLoad, bigSlice)
		targetState := states[targetAddr]
		targetState.load += bigLoad
		targetState.sliceLoad[bigSlice] = bigLoad

		after := systemImbalance(states, order)

		candidates = append(candidates, candidate{
			move:    assignment.Move{SliceID: bigSlice, From: hotAddr, To: targetAddr},
			benefit: before - after,
		})
	}

	var moves []assignment.Move
	for _, c := range candidates {
		if c.benefit > 0 {
			moves = append(moves, c.move)
		}
	}
	return moves
}

func meanLoad(states map[string]*serverState, order []string) uint32 {
	var sum uint64
	for _, addr := range order {
		sum += uint64(states[addr].load)
	}
	return uint32(sum / uint64(len(order)))
}

// systemImbalance is max(load) / mean(load) using an integer mean, per
// spec.md §4.3.
func systemImbalance(states map[string]*serverState, order []string) float64 {
	mean := meanLoad(states, order)
	if mean == 0 {
		return 0
	}
	var max uint32
	for _, addr := range order {
		if states[addr].load > max {
			max = states[addr].load
		}
	}
	return float64(max) / float64(mean)
}

// largestSlice returns the slice with the highest load on s, tie-broken
// by the lowest slice id.
func largestSlice(s *serverState) (uint16, uint32, bool) {
	if len(s.sliceLoad) == 0 {
		return 0, 0, false
	}
	ids := make([]uint16, 0, len(s.sliceLoad))
	for id := range s.sliceLoad {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	best := ids[0]
	bestLoad := s.sliceLoad[best]
	for _, id := range ids[1:] {
		if s.sliceLoad[id] > bestLoad {
			best, bestLoad = id, s.sliceLoad[id]
		}
	}
	return best, bestLoad, true
}

// leastLoadedOther returns the lowest-load server other than exclude,
// tie-broken by lowest address.
func leastLoadedOther(states map[string]*serverState, order []string, exclude string) (string, bool) {
	var best string
	var bestLoad uint32
	found := false
	for _, addr := range order {
		if addr == exclude {
			continue
		}
		load := states[addr].load
		if !found || load < bestLoad || (load == bestLoad && addr < best) {
			best, bestLoad, found = addr, load, true
		}
	}
	return best, found
}
