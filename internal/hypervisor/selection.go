package hypervisor

import (
	"time"

	"github.com/starpu-go/heteroprio/internal/worker"
)

// getFirstWorkers implements _get_first_workers from policy_utils.c: pick
// up to n movable (non-fixed) workers from candidates, selecting at each
// step the lowest-priority worker not yet chosen, tying on highest current
// idle time. Returns fewer than n if candidates run out.
func getFirstWorkers(cfg *ResizeConfig, candidates []worker.ID, idle map[worker.ID]time.Duration, n int) []worker.ID {
	chosen := make(map[worker.ID]bool, n)
	out := make([]worker.ID, 0, n)

	for len(out) < n {
		var best worker.ID
		found := false
		for _, id := range candidates {
			if chosen[id] || cfg.Fixed[id] {
				continue
			}
			if !found {
				best = id
				found = true
				continue
			}
			bp, cp := cfg.priorityOf(best), cfg.priorityOf(id)
			if cp < bp || (cp == bp && idle[id] > idle[best]) {
				best = id
			}
		}
		if !found {
			break
		}
		chosen[best] = true
		out = append(out, best)
	}
	return out
}

// getPotentialNworkers implements _get_potential_nworkers: the count of
// non-fixed workers in candidates (every candidate here already matches the
// architecture filter by construction, unlike the C original which filters
// inline).
func getPotentialNworkers(cfg *ResizeConfig, candidates []worker.ID) int {
	n := 0
	for _, id := range candidates {
		if !cfg.Fixed[id] {
			n++
		}
	}
	return n
}

// getNworkersToMove implements the exact branching of _get_nworkers_to_move
// in policy_utils.c: given the sender's current worker count w, its
// movable-worker count potential, and its [min,max] bounds with
// granularity g, compute how many workers to move out.
func getNworkersToMove(w, potential, minWorkers, maxWorkers, granularity, fixedCount int) int {
	switch {
	case potential <= minWorkers:
		return potential
	case potential > maxWorkers:
		if potential-granularity > maxWorkers {
			return potential
		}
		return potential - maxWorkers
	case potential > granularity:
		if w-granularity > minWorkers {
			return granularity
		}
		return potential - minWorkers
	default:
		if w-potential >= minWorkers {
			return potential
		}
		return potential - (minWorkers - (w - potential))
	}
}
