package heteroprio

import (
	"github.com/rs/zerolog/log"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
	"github.com/starpu-go/heteroprio/internal/schederr"
	"github.com/starpu-go/heteroprio/internal/worker"
)

// PushTask enqueues t into its priority bucket and wakes at least one
// eligible waiting worker if any exists. Mirrors push_task_heteroprio_policy.
func (s *Scheduler) PushTask(t *bucket.Task) error {
	s.mu.Lock()

	b := s.mapping.Bucket(t.Priority)
	if b == nil {
		s.mu.Unlock()
		return schederr.Config("push: priority %d is out of range [0,%d)", t.Priority, s.mapping.MaxPrio())
	}
	if b.ValidArchs() == 0 {
		s.mu.Unlock()
		return schederr.Config("push: bucket for priority %d has no valid architectures", t.Priority)
	}
	if b.ValidArchs()&^t.Where != 0 {
		s.mu.Unlock()
		return schederr.Config("push: bucket for priority %d claims archs %v not in task's allowed set %v", t.Priority, b.ValidArchs(), t.Where)
	}

	b.PushBack(t)
	for i := 0; i < arch.NbArchTypes; i++ {
		if b.ValidArchs().Has(arch.ToType(arch.Index(i))) {
			s.remainingTasksPerArch[i]++
		}
	}
	s.totalTasks++

	// Wake-up protocol: scan waiting workers eligible for this bucket's
	// architectures and clear the first match's waiter bit while
	// policy_mutex is still held, so two concurrent pushes can never pick
	// the same waiter. The actual Cond.Signal is deferred until after
	// policy_mutex is released.
	var toWake *worker.Wrapper
	s.workers.Each(func(w *worker.Wrapper) {
		if toWake != nil {
			return
		}
		if b.ValidArchs().Has(w.ArchType()) && w.ClearWaiting() {
			toWake = w
		}
	})

	ctxName := s.name
	s.mu.Unlock()

	if toWake != nil {
		toWake.Signal()
	}
	if s.hook != nil {
		// worker id is not known for a generic push; the hook records
		// context-level accounting only (pushed_task in spec.md §4.4 keys
		// on worker in the C original because one push call pushes for a
		// specific worker context; here we report against the zero
		// worker id when no specific worker triggered this push).
		s.hook.PushedTask(ctxName, 0)
	}
	if s.m != nil {
		s.m.ObservePush(ctxName, t.Priority)
	}

	log.Debug().Str("ctx", ctxName).Int("prio", t.Priority).Int("total", s.totalTasks).Msg("task pushed")
	return nil
}
