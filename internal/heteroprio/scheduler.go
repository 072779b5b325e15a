// Package heteroprio implements the heteroprio scheduler: a set of
// priority buckets shared by a scheduling context's workers, pulled through
// per-worker prefetch queues with architecture-affinity gating and
// work-stealing. This is a direct port of the push/pop/prefetch/steal
// algorithm in src/sched_policies/heteroprio.c from the StarPU project this
// specification is drawn from.
package heteroprio

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
	"github.com/starpu-go/heteroprio/internal/metrics"
	"github.com/starpu-go/heteroprio/internal/schederr"
	"github.com/starpu-go/heteroprio/internal/worker"
)

// Hook lets an external collaborator observe scheduler decisions without
// heteroprio importing the hypervisor package directly, keeping the
// dependency edge one-directional the way heteroprio.c calls into
// sched_ctx_hypervisor's callbacks through function pointers rather than a
// compiled-in dependency.
type Hook interface {
	PushedTask(ctxName string, w worker.ID)
	PopedTask(ctxName string, w worker.ID, flops float64)
	IdleTime(ctxName string, w worker.ID, d time.Duration)
	ResetIdleTime(ctxName string, w worker.ID)
}

// PrefetchHint is called, best-effort, for each task moved into a worker's
// local queue during a refill. It stands in for
// starpu_prefetch_task_input_on_node: a failure here never blocks the pop
// that triggered it.
type PrefetchHint func(t *bucket.Task, w worker.ID)

// WorkerID re-exports worker.ID so callers outside this module's internal
// tree (schedctx, the demo CLI) can name a worker without importing the
// worker package directly for that alone.
type WorkerID = worker.ID

// Config bundles heteroprio's compile-time constants.
type Config struct {
	MaxPrio     int
	MaxPrefetch int
}

// Scheduler owns one scheduling context's buckets and worker collection. It
// is safe for concurrent use by multiple worker goroutines and by the
// pusher(s) feeding it.
type Scheduler struct {
	name string
	cfg  Config

	mu       sync.Mutex // policy_mutex
	mapping  *bucket.Mapping
	workers  *worker.Collection
	children map[worker.ID]*Scheduler // context routing: worker -> child ctx it masters

	totalTasks             int
	remainingTasksPerArch  [arch.NbArchTypes]int
	prefetchedTasksPerArch [arch.NbArchTypes]int

	hook         Hook
	prefetchHint PrefetchHint
	m            *metrics.Scheduler
}

// New constructs a Scheduler for context name with cfg's constants. cfg
// zero values are replaced by starpu_heteroprio.h's defaults (100, 2).
func New(name string, cfg Config, m *metrics.Scheduler) *Scheduler {
	if cfg.MaxPrio <= 0 {
		cfg.MaxPrio = 100
	}
	if cfg.MaxPrefetch < 1 {
		cfg.MaxPrefetch = 2
	}
	return &Scheduler{
		name:     name,
		cfg:      cfg,
		mapping:  bucket.NewMapping(cfg.MaxPrio),
		workers:  worker.NewCollection(),
		children: make(map[worker.ID]*Scheduler),
		m:        m,
	}
}

// SetHook installs the hypervisor observation hook.
func (s *Scheduler) SetHook(h Hook) { s.hook = h }

// SetPrefetchHint installs the best-effort data-prefetch callback.
func (s *Scheduler) SetPrefetchHint(f PrefetchHint) { s.prefetchHint = f }

// Mapping exposes the bucket/priority configuration surface (SetNbPrios,
// SetMapping, SetFasterArch via Bucket, SetSlowFactor via Bucket).
func (s *Scheduler) Mapping() *bucket.Mapping { return s.mapping }

// Name returns the scheduling context name this scheduler serves.
func (s *Scheduler) Name() string { return s.name }

// AddWorker attaches a new worker of architecture a and returns its id.
// Mirrors add_workers_heteroprio_policy.
func (s *Scheduler) AddWorker(a arch.Type) worker.ID {
	w := s.workers.Add(a, s.cfg.MaxPrefetch)
	log.Debug().Str("ctx", s.name).Str("arch", a.String()).Int("worker", int(w.ID())).Msg("worker attached")
	return w.ID()
}

// RemoveWorker detaches a worker. Mirrors remove_workers_heteroprio_policy.
func (s *Scheduler) RemoveWorker(id worker.ID) {
	s.workers.Remove(id)
	delete(s.children, id)
}

// WorkerIDs returns a snapshot of attached worker ids, used by the
// hypervisor's worker-selection rule.
func (s *Scheduler) WorkerIDs() []worker.ID {
	return s.workers.IDs()
}

// WorkerArch returns the architecture of worker id, and whether it is
// attached at all.
func (s *Scheduler) WorkerArch(id worker.ID) (arch.Type, bool) {
	w := s.workers.Get(id)
	if w == nil {
		return 0, false
	}
	return w.ArchType(), true
}

// ParkWorker blocks the calling goroutine, which must be worker id's own
// execution loop, until a push it is eligible for wakes it; a steal from
// its local queue does not wake it. Mirrors the worker core's idle wait
// around its own pop call in driver_run.
func (s *Scheduler) ParkWorker(id worker.ID) {
	w := s.workers.Get(id)
	if w == nil {
		return
	}
	w.Park()
}

// ReportIdle forwards an observed idle sample of duration d for worker id to
// the installed hook, mirroring the idle-time accounting the StarPU worker
// core performs around its own pop loop. A no-op if no hook is installed.
func (s *Scheduler) ReportIdle(id worker.ID, d time.Duration) {
	if s.hook != nil {
		s.hook.IdleTime(s.name, id, d)
	}
}

// ResetIdle forwards a reset of worker id's accumulated idle time to the
// installed hook, called once the worker picks up a task again.
func (s *Scheduler) ResetIdle(id worker.ID) {
	if s.hook != nil {
		s.hook.ResetIdleTime(s.name, id)
	}
}

// SetChildContext declares that worker id is the master of a child
// scheduling context: tasks it would otherwise execute are routed there
// instead, mirroring the child-context dispatch at the end of
// pop_task_heteroprio_policy.
func (s *Scheduler) SetChildContext(id worker.ID, child *Scheduler) {
	s.mu.Lock()
	s.children[id] = child
	s.mu.Unlock()
}

// InitSched validates the bucket mapping, installing the identity default
// if the caller never configured one. Mirrors initialize_heteroprio_policy.
func (s *Scheduler) InitSched() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := s.attachedArchsLocked()
	s.mapping.ApplyDefaultIfUnconfigured(known)
	return s.mapping.CheckConsistency(known)
}

// DeinitSched asserts every counter is back to zero, mirroring
// deinitialize_heteroprio_policy's assertions. Called once all workers have
// been removed and all tasks drained.
func (s *Scheduler) DeinitSched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	schederr.InvariantCheck(s.totalTasks == 0, "deinit: total_tasks_in_buckets = %d, want 0", s.totalTasks)
	for i := 0; i < arch.NbArchTypes; i++ {
		schederr.InvariantCheck(s.remainingTasksPerArch[i] == 0, "deinit: remaining_tasks[%d] = %d, want 0", i, s.remainingTasksPerArch[i])
		schederr.InvariantCheck(s.prefetchedTasksPerArch[i] == 0, "deinit: prefetched_tasks[%d] = %d, want 0", i, s.prefetchedTasksPerArch[i])
	}
}

func (s *Scheduler) attachedArchsLocked() []arch.Type {
	seen := map[arch.Type]bool{}
	var out []arch.Type
	s.workers.Each(func(w *worker.Wrapper) {
		if !seen[w.ArchType()] {
			seen[w.ArchType()] = true
			out = append(out, w.ArchType())
		}
	})
	return out
}
