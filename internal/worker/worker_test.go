package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
)

func TestWrapperPushPopFrontOrder(t *testing.T) {
	w := NewWrapper(0, arch.CPU, 4)
	a, b := &bucket.Task{ID: "a"}, &bucket.Task{ID: "b"}
	w.PushLocal(a)
	w.PushLocal(b)
	assert.Equal(t, a, w.PopLocalFront())
	assert.Equal(t, b, w.PopLocalFront())
}

func TestWrapperTryStealBackTakesNewest(t *testing.T) {
	w := NewWrapper(0, arch.CPU, 4)
	a, b := &bucket.Task{ID: "a"}, &bucket.Task{ID: "b"}
	w.PushLocal(a)
	w.PushLocal(b)
	got, ok := w.TryStealBack()
	require.True(t, ok)
	assert.Equal(t, b, got, "expected to steal newest task b")
}

func TestWrapperTryStealBackEmptyFails(t *testing.T) {
	w := NewWrapper(0, arch.CPU, 4)
	_, ok := w.TryStealBack()
	assert.False(t, ok, "expected steal to fail on empty local queue")
}

func TestWrapperWakeClearsWaiting(t *testing.T) {
	w := NewWrapper(0, arch.CPU, 1)
	done := make(chan struct{})
	go func() {
		w.Park()
		close(done)
	}()

	// Give the goroutine a chance to actually park.
	time.Sleep(10 * time.Millisecond)
	w.Wake()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park did not return after Wake")
	}
	assert.False(t, w.Waiting(), "expected waiting to be cleared after wake")
}

func TestWrapperClearWaitingIsAtomicCheckAndClear(t *testing.T) {
	w := NewWrapper(0, arch.CPU, 1)
	assert.False(t, w.ClearWaiting(), "expected no waiter to clear before parking")

	w.SetWaiting(true)
	assert.True(t, w.ClearWaiting(), "expected first clear to find and clear the waiter bit")
	assert.False(t, w.ClearWaiting(), "expected a second concurrent clear to find nothing left to claim")
	assert.False(t, w.Waiting())
}

func TestWrapperClearWaitingThenSignalWakesParkedWorker(t *testing.T) {
	w := NewWrapper(0, arch.CPU, 1)
	done := make(chan struct{})
	go func() {
		w.Park()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, w.ClearWaiting())
	w.Signal()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park did not return after ClearWaiting+Signal")
	}
}

func TestCollectionStealCandidatesCircularOrder(t *testing.T) {
	c := NewCollection()
	w0 := c.Add(arch.CPU, 2)
	w1 := c.Add(arch.CPU, 2)
	w2 := c.Add(arch.CPU, 2)

	cands := c.StealCandidates(w0.ID(), arch.CPU)
	require.Len(t, cands, 2)
	assert.Equal(t, w1.ID(), cands[0])
	assert.Equal(t, w2.ID(), cands[1])
}

func TestCollectionCountArch(t *testing.T) {
	c := NewCollection()
	c.Add(arch.CPU, 2)
	c.Add(arch.CPU, 2)
	c.Add(arch.CUDA, 2)

	assert.Equal(t, 2, c.CountArch(arch.CPU))
	assert.Equal(t, 1, c.CountArch(arch.CUDA))
}

func TestCollectionRemove(t *testing.T) {
	c := NewCollection()
	w0 := c.Add(arch.CPU, 2)
	c.Remove(w0.ID())
	assert.Nil(t, c.Get(w0.ID()))
	assert.Equal(t, 0, c.Len())
}
