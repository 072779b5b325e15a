package hypervisor

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starpu-go/heteroprio/internal/worker"
)

// PushedTask implements heteroprio.Hook. It mirrors
// sc_hypervisor_call_pushed_task_cb: bump the per-worker and per-context
// push counters, start the context's clock on its very first task, and flip
// resize on once the context has accumulated min_tasks pushes.
func (h *Hypervisor) PushedTask(ctxName string, w worker.ID) {
	sw := h.wrapperFor(ctxName)
	if sw == nil {
		return
	}
	sw.mu.Lock()
	sw.pushedTasks[w]++
	sw.totalPushed++
	first := sw.totalPushed == 1
	crossedThreshold := sw.totalPushed == h.cfg.MinTasks
	if first {
		sw.startTime = time.Now()
	}
	sw.mu.Unlock()

	if crossedThreshold {
		h.StartResize(ctxName)
	}
	if h.policy != nil {
		if err := h.policy.OnTaskPushed(h, ctxName); err != nil {
			log.Debug().Err(err).Str("ctx", ctxName).Msg("policy declined resize on pushed task")
		}
	}
}

// PopedTask implements heteroprio.Hook. It mirrors
// sc_hypervisor_call_poped_task_cb: account the flops this worker just
// burned through, then either ask the policy to resize (if more than one
// context is live and either resize is enabled or this context is fully
// drained) or, failing that, check whether a pending move has completed.
func (h *Hypervisor) PopedTask(ctxName string, w worker.ID, flops float64) {
	sw := h.wrapperFor(ctxName)
	if sw == nil {
		return
	}
	sw.mu.Lock()
	sw.elapsedFlops[w] += flops
	sw.totalElapsed[w] += flops
	sw.popedTasks[w]++
	sw.remainingFlops -= flops
	resizeEnabled := sw.resizeEnabled
	sw.mu.Unlock()

	if h.policy == nil {
		return
	}
	drained := h.FlopsRemainingPct(ctxName) <= 0
	if len(h.contextNames()) > 1 && (resizeEnabled || drained) {
		if err := h.policy.OnTaskPoped(h, ctxName); err != nil {
			log.Debug().Err(err).Str("ctx", ctxName).Msg("policy declined resize on poped task")
		}
		return
	}
	h.checkResizeAck(ctxName)
}

// IdleTime implements heteroprio.Hook. It mirrors
// sc_hypervisor_call_idle_cb: accumulate the sample, and once resize is
// enabled and the worker's running idle total crosses its configured
// max_idle, ask the policy to act. Otherwise it just checks whether an
// in-flight move has finished.
func (h *Hypervisor) IdleTime(ctxName string, w worker.ID, d time.Duration) {
	sw := h.wrapperFor(ctxName)
	if sw == nil {
		return
	}
	sw.mu.Lock()
	sw.currentIdleTime[w] += d
	exceeded := sw.resizeEnabled && sw.currentIdleTime[w] > sw.config.maxIdleOf(w)
	sw.mu.Unlock()

	if exceeded && h.policy != nil {
		if err := h.policy.OnIdleExceeded(h, ctxName); err != nil {
			log.Debug().Err(err).Str("ctx", ctxName).Msg("policy declined resize on idle")
		}
		return
	}
	h.checkResizeAck(ctxName)
}

// ResetIdleTime implements heteroprio.Hook. It mirrors
// sc_hypervisor_call_reset_idle_time: only clears the running idle total
// while resize is enabled for the context, matching the original's guard.
func (h *Hypervisor) ResetIdleTime(ctxName string, w worker.ID) {
	sw := h.wrapperFor(ctxName)
	if sw == nil {
		return
	}
	sw.mu.Lock()
	if sw.resizeEnabled {
		sw.currentIdleTime[w] = 0
	}
	sw.mu.Unlock()
}

// DeferResize registers a resize request for ctx to be applied the next
// time a task carrying taskTag finishes executing, mirroring
// sched_ctx_hypervisor_resize's task_tag-guarded deferred path: an
// application can ask for a resize that only takes effect once a specific
// in-flight task completes, rather than immediately.
func (h *Hypervisor) DeferResize(taskTag int64, ctx string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deferredByTag == nil {
		h.deferredByTag = make(map[int64]string)
	}
	h.deferredByTag[taskTag] = ctx
}

// PostExecHook implements the post-exec deferred-resize path: once the task
// tagged taskTag finishes, apply any resize request that was deferred
// against it, mirroring sched_ctx_hypervisor_post_exec_hook.
func (h *Hypervisor) PostExecHook(taskTag int64) {
	h.mu.Lock()
	ctx, ok := h.deferredByTag[taskTag]
	if ok {
		delete(h.deferredByTag, taskTag)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if err := h.Resize(ctx, true); err != nil {
		log.Debug().Err(err).Str("ctx", ctx).Int64("task_tag", taskTag).Msg("deferred resize failed")
	}
}
