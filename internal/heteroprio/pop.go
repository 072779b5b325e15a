package heteroprio

import (
	"github.com/rs/zerolog/log"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
	"github.com/starpu-go/heteroprio/internal/worker"
)

// PopTask returns the next task worker id should execute, or (nil, false)
// if none is currently available — the caller should then park on the
// worker's condition variable. Mirrors pop_task_heteroprio_policy.
func (s *Scheduler) PopTask(id worker.ID) (*bucket.Task, bool) {
	w := s.workers.Get(id)
	if w == nil {
		return nil, false
	}

	// Fast reject outside the mutex: a worker already marked waiting has
	// nothing new to find until a push clears that bit.
	if w.Waiting() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	archIdx := w.ArchIndex()
	added := s.refillPrefetchLocked(w, archIdx)

	if t := w.PopLocalFront(); t != nil {
		s.prefetchedTasksPerArch[archIdx]--
		s.afterPopLocked(w, t)
		s.runPrefetchHintLocked(w, added)
		return s.routeOrReturnLocked(w, t)
	}

	if s.prefetchedTasksPerArch[archIdx] > 0 {
		if t, ok := s.stealLocked(w); ok {
			s.prefetchedTasksPerArch[archIdx]--
			s.afterPopLocked(w, t)
			s.runPrefetchHintLocked(w, added)
			return s.routeOrReturnLocked(w, t)
		}
	}

	w.SetWaiting(true)
	log.Debug().Str("ctx", s.name).Int("worker", int(id)).Msg("worker parked, no task available")
	return nil, false
}

// refillPrefetchLocked implements step 1 of pop_task_heteroprio_policy: top
// up w's local queue from eligible buckets, honoring the remaining-task
// clamp and the slow-factor gate. Must be called with s.mu held.
func (s *Scheduler) refillPrefetchLocked(w *worker.Wrapper, archIdx arch.Index) int {
	k := w.Capacity() - w.LocalLen()
	if k <= 0 {
		return 0
	}

	remaining := s.remainingTasksPerArch[archIdx]
	if remaining < k {
		k = remaining
	}
	// If remaining work for this architecture is scarcer than the number of
	// workers competing for it, only ever take one at a time, and only when
	// local is otherwise empty, so a single worker cannot starve its peers
	// by hoarding the last few tasks into its own prefetch buffer.
	nbWorkers := s.workers.Len()
	if remaining < nbWorkers {
		if w.LocalLen() == 0 {
			if k > 1 {
				k = 1
			}
		} else {
			k = 0
		}
	}
	budget := k

	baseCount := 0
	nbPrios := s.mapping.NbPrios(arch.ToType(archIdx))
	for idxPrio := 0; idxPrio < nbPrios && k > 0; idxPrio++ {
		bid := s.mapping.BucketForPrio(arch.ToType(archIdx), idxPrio)
		if bid < 0 {
			continue
		}
		b := s.mapping.Bucket(bid)
		if base, set := b.FactorBase(); set {
			baseCount = s.workers.CountArchIndex(base)
		}
		for !b.Empty() && k > 0 {
			if !b.CanPull(archIdx, baseCount) {
				break
			}
			t := b.PopFront()
			s.totalTasks--
			for i := 0; i < arch.NbArchTypes; i++ {
				if b.ValidArchs().Has(arch.ToType(arch.Index(i))) {
					s.remainingTasksPerArch[i]--
				}
			}
			w.PushLocal(t)
			s.prefetchedTasksPerArch[archIdx]++
			k--
		}
	}
	return budget - k
}

// stealLocked implements the circular work-stealing scan: walk peers of the
// same architecture starting just after w, try each one's back, stop at
// the first success or after a full pass. Per DESIGN.md's Open Question
// decision, a full pass with no candidate is treated as "no steal
// possible", not retried.
func (s *Scheduler) stealLocked(w *worker.Wrapper) (*bucket.Task, bool) {
	candidates := s.workers.StealCandidates(w.ID(), w.ArchType())
	for _, vid := range candidates {
		victim := s.workers.Get(vid)
		if victim == nil {
			continue
		}
		if t, ok := victim.TryStealBack(); ok {
			log.Debug().Str("ctx", s.name).Int("thief", int(w.ID())).Int("victim", int(vid)).Msg("stole task")
			if s.m != nil {
				s.m.ObserveSteal(s.name)
			}
			return t, true
		}
	}
	return nil, false
}

// afterPopLocked updates counters/hooks common to both the local-serve and
// steal paths.
func (s *Scheduler) afterPopLocked(w *worker.Wrapper, t *bucket.Task) {
	if s.hook != nil {
		s.hook.PopedTask(s.name, w.ID(), t.Flops)
	}
	if s.m != nil {
		s.m.ObservePop(s.name, t.Priority)
	}
}

// routeOrReturnLocked implements the child-context dispatch: if w is the
// master of a child scheduling context, the task is pushed there instead
// of being returned to w, matching pop_task_heteroprio_policy's final
// "push to the context this worker is master of" branch.
func (s *Scheduler) routeOrReturnLocked(w *worker.Wrapper, t *bucket.Task) (*bucket.Task, bool) {
	child, ok := s.children[w.ID()]
	if !ok {
		return t, true
	}
	s.mu.Unlock()
	err := child.PushTask(t)
	s.mu.Lock()
	if err != nil {
		log.Warn().Err(err).Str("ctx", s.name).Int("worker", int(w.ID())).Msg("failed to route task to child context")
	}
	return nil, false
}

// runPrefetchHintLocked invokes the best-effort data-prefetch hook for up
// to nbAdded tasks now sitting at the front of w's local queue, matching
// heteroprio.c's final loop bounded by nb_added_tasks. PrefetchHint is
// advisory and may be slow (it models a DMA kick-off), so it runs without
// policy_mutex held.
func (s *Scheduler) runPrefetchHintLocked(w *worker.Wrapper, nbAdded int) {
	if s.prefetchHint == nil || nbAdded <= 0 {
		return
	}
	tasks := w.PeekLocal(nbAdded)
	id := w.ID()
	s.mu.Unlock()
	for _, t := range tasks {
		s.prefetchHint(t, id)
	}
	s.mu.Lock()
}
