package hypervisor

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starpu-go/heteroprio/internal/schederr"
	"github.com/starpu-go/heteroprio/internal/worker"
)

// Resize implements policy.Driver: it runs the full algorithm from spec.md
// §4.5 / _resize in policy_utils.c for senderCtx. forced bypasses the
// try-lock-only behavior a background policy tick would use.
func (h *Hypervisor) Resize(senderCtx string, forced bool) error {
	if forced {
		h.mu.Lock()
	} else if !h.mu.TryLock() {
		return schederr.TransientContention("resize: act_hypervisor_mutex busy for context %s", senderCtx)
	}
	defer h.mu.Unlock()

	sw := h.wrappers[senderCtx]
	sctx := h.contexts[senderCtx]
	if sw == nil || sctx == nil {
		return schederr.Config("resize: unknown context %s", senderCtx)
	}

	sw.mu.Lock()
	if !sw.resizeEnabled && !forced {
		sw.mu.Unlock()
		return nil
	}
	if sw.pendingAck != nil {
		sw.mu.Unlock()
		return nil
	}
	cfg := sw.config
	sw.mu.Unlock()

	allWorkers := sctx.Scheduler().WorkerIDs()
	w := len(allWorkers)
	potential := getPotentialNworkers(cfg, allWorkers)
	fixedCount := countFixed(cfg, allWorkers)

	nMove := getNworkersToMove(w, potential, cfg.MinWorkers, cfg.MaxWorkers, cfg.Granularity, fixedCount)
	if nMove <= 0 {
		return nil
	}
	if w-nMove > cfg.MaxWorkers {
		nMove = w - cfg.MaxWorkers
	}
	if nMove <= 0 {
		return nil
	}

	receiverName, ok := h.findReceiverLocked(senderCtx, nMove)
	if !ok {
		log.Debug().Str("ctx", senderCtx).Msg("resize: no eligible receiver found")
		return nil
	}
	receiverWrapper := h.wrappers[receiverName]
	receiverCtx := h.contexts[receiverName]
	if receiverWrapper == nil || receiverCtx == nil {
		return schederr.Config("resize: receiver %s disappeared mid-resize", receiverName)
	}

	receiverCurrent := len(receiverCtx.Scheduler().WorkerIDs())
	if receiverCurrent+nMove > receiverWrapper.config.MaxWorkers {
		nMove = receiverWrapper.config.MaxWorkers - receiverCurrent
		if nMove <= 0 {
			return nil
		}
	}

	sw.mu.Lock()
	idleSnapshot := make(map[worker.ID]time.Duration, len(sw.currentIdleTime))
	for k, v := range sw.currentIdleTime {
		idleSnapshot[k] = v
	}
	sw.mu.Unlock()

	moved := getFirstWorkers(cfg, allWorkers, idleSnapshot, nMove)
	if len(moved) == 0 {
		return nil
	}

	h.moveWorkersLocked(senderCtx, receiverName, moved, receiverWrapper.config.NewWorkersMaxIdle)
	if h.m != nil {
		h.m.ObserveResize(senderCtx)
	}
	return nil
}

// findReceiverLocked picks the context, excluding sender, with the highest
// total configured priority among those whose post-receive worker count
// stays within their max_nworkers. Mirrors _find_poor_sched_ctx. Must be
// called with h.mu held.
func (h *Hypervisor) findReceiverLocked(senderCtx string, nMove int) (string, bool) {
	best := ""
	bestScore := -1
	for name, ctx := range h.contexts {
		if name == senderCtx {
			continue
		}
		w := h.wrappers[name]
		if w == nil {
			continue
		}
		current := len(ctx.Scheduler().WorkerIDs())
		if current+nMove > w.config.MaxWorkers {
			continue
		}
		score := 0
		for _, id := range ctx.Scheduler().WorkerIDs() {
			score += w.config.priorityOf(id)
		}
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	return best, best != ""
}

func countFixed(cfg *ResizeConfig, ids []worker.ID) int {
	n := 0
	for _, id := range ids {
		if cfg.Fixed[id] {
			n++
		}
	}
	return n
}

// moveWorkersLocked performs the actual membership change, recording a
// pending resize-ack on the sender and clearing the moved workers' idle
// counters, mirroring sched_ctx_hypervisor_move_workers. Must be called
// with h.mu held.
func (h *Hypervisor) moveWorkersLocked(senderName, receiverName string, ids []worker.ID, newWorkersMaxIdle time.Duration) {
	senderCtx := h.contexts[senderName]
	receiverCtx := h.contexts[receiverName]
	senderWrapper := h.wrappers[senderName]
	receiverWrapper := h.wrappers[receiverName]

	movedUnderReceiver := make([]worker.ID, 0, len(ids))
	for _, id := range ids {
		a, ok := senderCtx.Scheduler().WorkerArch(id)
		if !ok {
			continue
		}
		senderCtx.RemoveWorker(id)
		newID := receiverCtx.AddWorker(a)
		h.remapWorkerLocked(receiverWrapper, id, newID, newWorkersMaxIdle)
		movedUnderReceiver = append(movedUnderReceiver, newID)
	}

	senderWrapper.mu.Lock()
	// movedWorkers records the ids moved workers now answer to under the
	// receiver: AddWorker always allocates a fresh id, so checkResizeAck must
	// key into the receiver's accounting by the new id, not the one the
	// sender knew the worker by.
	senderWrapper.pendingAck = &resizeAck{receiver: receiverName, movedWorkers: movedUnderReceiver, issuedAt: time.Now()}
	for _, id := range ids {
		delete(senderWrapper.currentIdleTime, id)
	}
	senderWrapper.resizeEnabled = false
	senderWrapper.mu.Unlock()

	log.Info().Str("sender", senderName).Str("receiver", receiverName).Int("moved", len(ids)).Msg("hypervisor moved workers")
}

func (h *Hypervisor) remapWorkerLocked(receiverWrapper *contextWrapper, oldID, newID worker.ID, newWorkersMaxIdle time.Duration) {
	receiverWrapper.mu.Lock()
	defer receiverWrapper.mu.Unlock()
	if _, ok := receiverWrapper.config.MaxIdle[newID]; !ok {
		receiverWrapper.config.MaxIdle[newID] = newWorkersMaxIdle
	}
}

// checkResizeAck implements _check_for_resize_ack. It is invoked whenever a
// hook fires against observedCtx, and resolves every pending ack that could
// plausibly have just progressed: observedCtx's own pending ack (it may be
// a sender whose moved workers haven't reported in yet) and any other
// context's pending ack that names observedCtx as the receiver (the moved
// workers' progress is reported through the receiver's hooks).
func (h *Hypervisor) checkResizeAck(observedCtx string) {
	h.mu.Lock()
	candidates := make([]string, 0, 1)
	if _, ok := h.wrappers[observedCtx]; ok {
		candidates = append(candidates, observedCtx)
	}
	for name, w := range h.wrappers {
		if name == observedCtx {
			continue
		}
		w.mu.Lock()
		matches := w.pendingAck != nil && w.pendingAck.receiver == observedCtx
		w.mu.Unlock()
		if matches {
			candidates = append(candidates, name)
		}
	}
	h.mu.Unlock()

	for _, senderName := range candidates {
		h.completeResizeAckIfReady(senderName)
	}
}

// completeResizeAckIfReady resolves senderName's pending ack, if any: a
// pending resize completes only once every moved worker has measurably
// executed under the receiver. On completion it resets both contexts'
// start_time, deducts the elapsed flops sum from remaining_flops, and
// re-enables sender resize.
func (h *Hypervisor) completeResizeAckIfReady(senderName string) {
	h.mu.Lock()
	sw := h.wrappers[senderName]
	h.mu.Unlock()
	if sw == nil {
		return
	}

	sw.mu.Lock()
	ack := sw.pendingAck
	sw.mu.Unlock()
	if ack == nil {
		return
	}

	h.mu.Lock()
	rw := h.wrappers[ack.receiver]
	h.mu.Unlock()
	if rw == nil {
		return
	}

	rw.mu.Lock()
	complete := true
	var elapsedSum float64
	for _, id := range ack.movedWorkers {
		e := rw.elapsedFlops[id]
		if e == 0 {
			complete = false
			break
		}
		elapsedSum += e
	}
	if complete {
		for _, id := range ack.movedWorkers {
			rw.elapsedFlops[id] = 0
		}
		rw.startTime = time.Now()
	}
	rw.mu.Unlock()
	if !complete {
		return
	}

	sw.mu.Lock()
	sw.remainingFlops -= elapsedSum
	sw.startTime = time.Now()
	sw.pendingAck = nil
	sw.resizeEnabled = true
	sw.mu.Unlock()

	if h.m != nil {
		h.m.ObserveResizeAckLatency(time.Since(ack.issuedAt).Seconds())
	}
	log.Info().Str("sender", senderName).Str("receiver", ack.receiver).Msg("resize acknowledgement complete")
}

// FlopsRemainingPct implements policy.Driver.
func (h *Hypervisor) FlopsRemainingPct(ctx string) float64 {
	w := h.wrapperFor(ctx)
	if w == nil {
		return 0
	}
	return w.flopsRemainingPct()
}

// Contexts implements policy.Driver.
func (h *Hypervisor) Contexts() []string {
	return h.contextNames()
}
