package hypervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/heteroprio"
	"github.com/starpu-go/heteroprio/internal/hypervisor/policy"
	"github.com/starpu-go/heteroprio/internal/metrics"
	"github.com/starpu-go/heteroprio/internal/schedctx"
	"github.com/starpu-go/heteroprio/internal/worker"
)

func newTestHypervisor(t *testing.T, pol policy.Policy) (*Hypervisor, *metrics.Collector) {
	t.Helper()
	coll := metrics.NewCollector(nil)
	cfg := Config{
		MinTasks:           1,
		DefaultMinWorkers:  0,
		DefaultMaxWorkers:  10,
		DefaultGranularity: 1,
		DefaultMaxIdle:     time.Second,
		NewWorkersMaxIdle:  time.Second,
	}
	return New(cfg, pol, coll.Hypervisor), coll
}

func newTestContext(t *testing.T, name string, m *metrics.Scheduler) *schedctx.Context {
	t.Helper()
	return schedctx.New(name, heteroprio.Config{MaxPrio: 8, MaxPrefetch: 2}, m)
}

func TestGetNworkersToMoveBranches(t *testing.T) {
	cases := []struct {
		name                                       string
		w, potential, min, max, granularity, fixed int
		want                                       int
	}{
		{"below_min_returns_all_potential", 3, 3, 5, 10, 1, 0, 3},
		{"above_max_large_granularity_gap_returns_all", 15, 15, 0, 10, 2, 0, 15},
		{"above_max_small_gap_returns_overflow_only", 11, 11, 0, 10, 3, 0, 1},
		{"granularity_branch_returns_granularity", 5, 5, 1, 10, 2, 0, 2},
		{"granularity_branch_floor_clamp", 5, 5, 4, 10, 2, 0, 1},
		{"default_branch_returns_potential", 5, 3, 2, 10, 5, 0, 3},
		{"default_branch_floor_clamp", 5, 5, 3, 10, 6, 0, 2},
		{"default_branch_respects_min_with_fixed_workers", 6, 5, 3, 10, 5, 2, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := getNworkersToMove(c.w, c.potential, c.min, c.max, c.granularity, c.fixed)
			assert.Equal(t, c.want, got,
				"getNworkersToMove(%d,%d,%d,%d,%d,%d)", c.w, c.potential, c.min, c.max, c.granularity, c.fixed)
		})
	}
}

func TestGetFirstWorkersPicksLowestPriorityThenHighestIdle(t *testing.T) {
	cfg := defaultResizeConfig(0, 10, 1, time.Second)
	cfg.Priority[1] = 5
	cfg.Priority[2] = 1
	cfg.Priority[3] = 1
	cfg.Fixed[4] = true

	idle := map[worker.ID]time.Duration{
		1: 0,
		2: 2 * time.Second,
		3: time.Second,
		4: 10 * time.Second,
	}
	candidates := []worker.ID{1, 2, 3, 4}

	got := getFirstWorkers(cfg, candidates, idle, 2)
	require.Len(t, got, 2)
	assert.Equal(t, worker.ID(2), got[0], "expected worker 2 (priority 1, idle 2s) selected first")
	assert.Equal(t, worker.ID(3), got[1], "expected worker 3 (priority 1, idle 1s) selected second")
	assert.NotContains(t, got, worker.ID(4), "fixed worker must never be selected")
}

func TestResizeMovesWorkersAndRecordsPendingAck(t *testing.T) {
	h, coll := newTestHypervisor(t, policy.AppDriven{})

	sender := newTestContext(t, "sender", coll.Scheduler)
	receiver := newTestContext(t, "receiver", coll.Scheduler)

	for i := 0; i < 3; i++ {
		sender.AddWorker(arch.CPU)
	}
	receiver.AddWorker(arch.CPU)

	require.NoError(t, sender.Scheduler().InitSched())
	require.NoError(t, receiver.Scheduler().InitSched())

	h.HandleContext(sender, 1000)
	h.HandleContext(receiver, 1000)

	require.NoError(t, h.Resize(sender.Name, true))

	assert.Len(t, sender.Scheduler().WorkerIDs(), 2, "expected sender left with 2 workers")
	assert.Len(t, receiver.Scheduler().WorkerIDs(), 2, "expected receiver to gain 1 worker (now 2)")

	sw := h.wrapperFor(sender.Name)
	sw.mu.Lock()
	ack := sw.pendingAck
	enabled := sw.resizeEnabled
	sw.mu.Unlock()
	require.NotNil(t, ack, "expected a pending resize ack on the sender")
	assert.Len(t, ack.movedWorkers, 1)
	assert.False(t, enabled, "expected resize to be disabled on the sender while an ack is pending")
}

func TestResizeAckCompletesOnceMovedWorkerReportsFlops(t *testing.T) {
	h, coll := newTestHypervisor(t, policy.AppDriven{})

	sender := newTestContext(t, "sender", coll.Scheduler)
	receiver := newTestContext(t, "receiver", coll.Scheduler)
	for i := 0; i < 2; i++ {
		sender.AddWorker(arch.CPU)
	}
	receiver.AddWorker(arch.CPU)
	require.NoError(t, sender.Scheduler().InitSched())
	require.NoError(t, receiver.Scheduler().InitSched())
	h.HandleContext(sender, 1000)
	h.HandleContext(receiver, 1000)

	require.NoError(t, h.Resize(sender.Name, true))

	sw := h.wrapperFor(sender.Name)
	sw.mu.Lock()
	movedID := sw.pendingAck.movedWorkers[0]
	sw.mu.Unlock()

	h.PopedTask(receiver.Name, movedID, 42)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	assert.Nil(t, sw.pendingAck, "expected pending ack to clear once the moved worker reported flops")
	assert.True(t, sw.resizeEnabled, "expected resize to re-enable on the sender once the ack completed")
}

func TestPushedTaskEnablesResizeAtMinTasks(t *testing.T) {
	h, coll := newTestHypervisor(t, policy.Idle{})
	ctx := newTestContext(t, "solo", coll.Scheduler)
	ctx.AddWorker(arch.CPU)
	require.NoError(t, ctx.Scheduler().InitSched())
	h.HandleContext(ctx, 500)

	w := h.wrapperFor(ctx.Name)
	w.mu.Lock()
	before := w.resizeEnabled
	w.mu.Unlock()
	assert.False(t, before, "resize should start disabled")

	h.PushedTask(ctx.Name, 0)

	w.mu.Lock()
	after := w.resizeEnabled
	w.mu.Unlock()
	assert.True(t, after, "expected resize to enable once pushed tasks crossed min_tasks")
}

func TestIdleTimeTriggersResizeWhenThresholdExceeded(t *testing.T) {
	h, coll := newTestHypervisor(t, policy.Idle{})

	sender := newTestContext(t, "sender", coll.Scheduler)
	receiver := newTestContext(t, "receiver", coll.Scheduler)
	sender.AddWorker(arch.CPU)
	sender.AddWorker(arch.CPU)
	receiver.AddWorker(arch.CPU)
	require.NoError(t, sender.Scheduler().InitSched())
	require.NoError(t, receiver.Scheduler().InitSched())
	h.HandleContext(sender, 1000)
	h.HandleContext(receiver, 1000)
	h.StartResize(sender.Name)

	ids := sender.Scheduler().WorkerIDs()
	h.IdleTime(sender.Name, ids[0], 2*time.Second)

	sw := h.wrapperFor(sender.Name)
	sw.mu.Lock()
	defer sw.mu.Unlock()
	assert.NotNil(t, sw.pendingAck, "expected idle policy to trigger a resize once max_idle was exceeded")
}

func TestResetIdleTimeOnlyClearsWhenResizeEnabled(t *testing.T) {
	h, coll := newTestHypervisor(t, policy.Idle{})
	ctx := newTestContext(t, "solo", coll.Scheduler)
	ctx.AddWorker(arch.CPU)
	require.NoError(t, ctx.Scheduler().InitSched())
	h.HandleContext(ctx, 500)

	ids := ctx.Scheduler().WorkerIDs()
	h.IdleTime(ctx.Name, ids[0], time.Second)
	h.ResetIdleTime(ctx.Name, ids[0])

	w := h.wrapperFor(ctx.Name)
	w.mu.Lock()
	untouched := w.currentIdleTime[ids[0]]
	w.mu.Unlock()
	assert.Equal(t, time.Second, untouched, "expected idle time to survive a reset while resize is disabled")

	h.StartResize(ctx.Name)
	h.ResetIdleTime(ctx.Name, ids[0])

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, time.Duration(0), w.currentIdleTime[ids[0]], "expected idle time to clear once resize is enabled")
}

func TestPostExecHookAppliesDeferredResize(t *testing.T) {
	h, coll := newTestHypervisor(t, policy.AppDriven{})
	sender := newTestContext(t, "sender", coll.Scheduler)
	receiver := newTestContext(t, "receiver", coll.Scheduler)
	for i := 0; i < 2; i++ {
		sender.AddWorker(arch.CPU)
	}
	receiver.AddWorker(arch.CPU)
	require.NoError(t, sender.Scheduler().InitSched())
	require.NoError(t, receiver.Scheduler().InitSched())
	h.HandleContext(sender, 1000)
	h.HandleContext(receiver, 1000)

	h.DeferResize(77, sender.Name)
	h.PostExecHook(77)

	assert.Len(t, sender.Scheduler().WorkerIDs(), 1, "expected deferred resize to move a worker out of sender")

	// A second call with no registration for that tag must be a no-op.
	h.PostExecHook(77)
	assert.Len(t, sender.Scheduler().WorkerIDs(), 1, "expected PostExecHook to be idempotent once the tag is consumed")
}
