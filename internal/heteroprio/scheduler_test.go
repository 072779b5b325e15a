package heteroprio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return New("test", Config{MaxPrio: 16, MaxPrefetch: 2}, nil)
}

func TestPushPopSingleArchDrain(t *testing.T) {
	s := newTestScheduler(t)
	w := s.AddWorker(arch.CPU)
	require.NoError(t, s.InitSched())

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PushTask(&bucket.Task{ID: "t", Priority: 0, Where: arch.CPU}), "push %d", i)
	}

	got := 0
	for i := 0; i < 5; i++ {
		if _, ok := s.PopTask(w); ok {
			got++
		}
	}
	assert.Equal(t, 5, got, "expected to drain 5 tasks")
	_, ok := s.PopTask(w)
	assert.False(t, ok, "expected no more tasks after drain")
}

func TestPushRejectsOutOfRangeBucketArchs(t *testing.T) {
	s := newTestScheduler(t)
	s.AddWorker(arch.CPU)
	require.NoError(t, s.InitSched())
	// default mapping only lets the identity arch through; CUDA isn't
	// attached so the bucket's valid_archs never includes it, and a task
	// declaring only CUDA should be rejected as having no bucket route.
	err := s.PushTask(&bucket.Task{ID: "t", Priority: 0, Where: arch.CUDA})
	assert.Error(t, err, "expected push to fail for architecture with no configured bucket route")
}

func TestAffinityVetoBlocksSlowArchUntilRatio(t *testing.T) {
	s := newTestScheduler(t)
	cpu := s.AddWorker(arch.CPU)
	s.AddWorker(arch.CUDA)
	require.NoError(t, s.Mapping().SetNbPrios(arch.CPU, 1))
	require.NoError(t, s.Mapping().SetNbPrios(arch.CUDA, 1))
	require.NoError(t, s.Mapping().SetMapping(arch.CPU, 0, 0))
	require.NoError(t, s.Mapping().SetMapping(arch.CUDA, 0, 0))
	b := s.Mapping().Bucket(0)
	b.SetFasterArch(arch.CUDA)
	b.SetSlowFactor(arch.CPU, 10)

	require.NoError(t, s.InitSched())

	require.NoError(t, s.PushTask(&bucket.Task{ID: "t", Priority: 0, Where: arch.CPU | arch.CUDA}))

	_, ok := s.PopTask(cpu)
	assert.False(t, ok, "expected CPU to be vetoed by the slow-factor gate with only 1 task queued")
}

func TestStealFromPeerBackOfQueue(t *testing.T) {
	s := New("test", Config{MaxPrio: 16, MaxPrefetch: 4}, nil)
	w0 := s.AddWorker(arch.CPU)
	w1 := s.AddWorker(arch.CPU)
	require.NoError(t, s.InitSched())

	for _, id := range []string{"t0", "t1", "t2", "t3"} {
		require.NoError(t, s.PushTask(&bucket.Task{ID: id, Priority: 0, Where: arch.CPU}))
	}

	// 4 remaining tasks is not fewer than the 2 workers, so w0's refill
	// takes all 4 into its local queue and serves the front one. w1 then
	// finds no remaining tasks and steals from the back of w0's queue.
	got, ok := s.PopTask(w0)
	require.True(t, ok, "expected w0 to obtain a task")
	assert.Equal(t, "t0", got.ID)
	got, ok = s.PopTask(w1)
	require.True(t, ok, "expected w1 to obtain a task by stealing")
	assert.Equal(t, "t3", got.ID, "expected w1 to steal the newest task from the back of w0's queue")
}

func TestWakeUpOnPush(t *testing.T) {
	s := newTestScheduler(t)
	w := s.AddWorker(arch.CPU)
	require.NoError(t, s.InitSched())

	wrapper := s.workers.Get(w)
	woke := make(chan struct{})
	go func() {
		wrapper.Park()
		close(woke)
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, s.PushTask(&bucket.Task{ID: "t", Priority: 0, Where: arch.CPU}))

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("expected push to wake the parked worker")
	}
}

func TestDeinitSchedPanicsOnLeftoverTasks(t *testing.T) {
	s := newTestScheduler(t)
	s.AddWorker(arch.CPU)
	require.NoError(t, s.InitSched())
	require.NoError(t, s.PushTask(&bucket.Task{ID: "t", Priority: 0, Where: arch.CPU}))

	defer func() {
		assert.NotNil(t, recover(), "expected DeinitSched to panic with tasks still queued")
	}()
	s.DeinitSched()
}
