// Package hypervisor implements the process-wide scheduling-context
// hypervisor: per-context accounting, the worker-reallocation resize
// algorithm, and pluggable resize policies. Grounded on
// sched_ctx_hypervisor/src/sched_ctx_hypervisor.c and
// hypervisor_policies/policy_utils.c.
package hypervisor

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/hypervisor/policy"
	"github.com/starpu-go/heteroprio/internal/metrics"
	"github.com/starpu-go/heteroprio/internal/schedctx"
	"github.com/starpu-go/heteroprio/internal/worker"
)

// Config controls the hypervisor's default thresholds for newly handled
// contexts.
type Config struct {
	MinTasks           int64
	DefaultMinWorkers  int
	DefaultMaxWorkers  int
	DefaultGranularity int
	DefaultMaxIdle     time.Duration
	NewWorkersMaxIdle  time.Duration
}

// Hypervisor is the single process-wide coordinator described in spec.md
// §2/§4.4-§4.6. act_hypervisor_mutex lives here as mu, guarding
// cross-context membership changes and the wrapper map; each contextWrapper
// additionally has its own lock for its own counters.
type Hypervisor struct {
	cfg Config
	m   *metrics.Hypervisor

	mu       sync.Mutex // act_hypervisor_mutex
	wrappers map[string]*contextWrapper
	contexts map[string]*schedctx.Context

	policy policy.Policy

	deferredByTag map[int64]string
}

// New constructs a Hypervisor that dispatches resize decisions to pol.
func New(cfg Config, pol policy.Policy, m *metrics.Hypervisor) *Hypervisor {
	return &Hypervisor{
		cfg:      cfg,
		m:        m,
		wrappers: make(map[string]*contextWrapper),
		contexts: make(map[string]*schedctx.Context),
		policy:   pol,
	}
}

// HandleContext registers ctx with the hypervisor and begins tracking it
// against totalFlops, mirroring sched_ctx_hypervisor_handle_ctx. It also
// installs itself as ctx's scheduler Hook so pushed/poped/idle events flow
// back into the resize machinery.
func (h *Hypervisor) HandleContext(ctx *schedctx.Context, totalFlops float64) {
	h.mu.Lock()
	cfg := defaultResizeConfig(h.cfg.DefaultMinWorkers, h.cfg.DefaultMaxWorkers, h.cfg.DefaultGranularity, h.cfg.NewWorkersMaxIdle)
	h.wrappers[ctx.Name] = newContextWrapper(ctx.Name, totalFlops, cfg)
	h.contexts[ctx.Name] = ctx
	h.mu.Unlock()

	ctx.Scheduler().SetHook(h)
	log.Info().Str("ctx", ctx.Name).Float64("total_flops", totalFlops).Msg("hypervisor now tracking context")
}

// IgnoreContext stops tracking ctx, mirroring sched_ctx_hypervisor_ignore_ctx.
func (h *Hypervisor) IgnoreContext(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.wrappers, name)
	delete(h.contexts, name)
}

// StartResize enables resize decisions for name, mirroring
// sched_ctx_hypervisor_start_resize.
func (h *Hypervisor) StartResize(name string) {
	h.mu.Lock()
	w := h.wrappers[name]
	h.mu.Unlock()
	if w == nil {
		return
	}
	w.mu.Lock()
	w.resizeEnabled = true
	w.mu.Unlock()
}

// StopResize disables resize decisions for name, mirroring
// sched_ctx_hypervisor_stop_resize.
func (h *Hypervisor) StopResize(name string) {
	h.mu.Lock()
	w := h.wrappers[name]
	h.mu.Unlock()
	if w == nil {
		return
	}
	w.mu.Lock()
	w.resizeEnabled = false
	w.mu.Unlock()
}

// Config exposes a context's resize configuration for tuning by the caller
// (min/max workers, granularity, per-worker priority, fixed flags).
func (h *Hypervisor) Config(name string) *ResizeConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.wrappers[name]
	if !ok {
		return nil
	}
	return w.config
}

// Shutdown stops tracking every context, mirroring
// sched_ctx_hypervisor_shutdown.
func (h *Hypervisor) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wrappers = make(map[string]*contextWrapper)
	h.contexts = make(map[string]*schedctx.Context)
}

// contextNames returns a snapshot of tracked context names, used by
// PopedTask's more-than-one-context check and by Contexts, so neither holds
// act_hypervisor_mutex while calling back into a policy.
func (h *Hypervisor) contextNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.contexts))
	for name := range h.contexts {
		out = append(out, name)
	}
	return out
}

func (h *Hypervisor) wrapperFor(name string) *contextWrapper {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wrappers[name]
}

func (h *Hypervisor) contextFor(name string) *schedctx.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.contexts[name]
}

// workersOfContext returns the live worker ids for name, or nil if name is
// not tracked.
func (h *Hypervisor) workersOfContext(name string) []worker.ID {
	ctx := h.contextFor(name)
	if ctx == nil {
		return nil
	}
	return ctx.Scheduler().WorkerIDs()
}

func (h *Hypervisor) workerArch(name string, id worker.ID) (arch.Type, bool) {
	ctx := h.contextFor(name)
	if ctx == nil {
		return 0, false
	}
	return ctx.Scheduler().WorkerArch(id)
}
