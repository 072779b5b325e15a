// Package worker implements the Worker Wrapper: a bounded local prefetch
// queue attached to one worker, plus the collection used for the circular
// steal scan in heteroprio's pop path.
package worker

import (
	"sync"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
)

// ID identifies a worker within one scheduling context's collection.
type ID int

// Wrapper is the per-worker state heteroprio consults on pop and steal:
// its architecture identity and a bounded local FIFO of already-prefetched
// tasks. Mirrors _heteroprio_worker_wrapper in heteroprio.c.
type Wrapper struct {
	id       ID
	archType arch.Type
	archIdx  arch.Index

	mu    sync.Mutex
	local []*bucket.Task

	capacity int

	// waiting is true once this worker has set its waiter bit: it found
	// nothing to pop and is parked until a push wakes it. Steals do not
	// clear this bit.
	waiting bool
	cond    *sync.Cond
}

// NewWrapper constructs a Wrapper for a worker of the given architecture
// with local-queue capacity cap (heteroprio's MAX_PREFETCH). cap must be at
// least 1.
func NewWrapper(id ID, a arch.Type, cap int) *Wrapper {
	if cap < 1 {
		cap = 1
	}
	w := &Wrapper{
		id:       id,
		archType: a,
		archIdx:  arch.ToIndex(a),
		capacity: cap,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// ID returns the worker's identity within its collection.
func (w *Wrapper) ID() ID { return w.id }

// ArchType returns the worker's architecture bit.
func (w *Wrapper) ArchType() arch.Type { return w.archType }

// ArchIndex returns the worker's dense architecture index.
func (w *Wrapper) ArchIndex() arch.Index { return w.archIdx }

// Capacity returns the local queue's bound (MAX_PREFETCH for this worker).
func (w *Wrapper) Capacity() int { return w.capacity }

// LocalLen returns the number of tasks currently prefetched for this
// worker. Safe for concurrent use.
func (w *Wrapper) LocalLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.local)
}

// LocalFull reports whether the local queue is at capacity.
func (w *Wrapper) LocalFull() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.local) >= w.capacity
}

// PushLocal appends a prefetched task to the back of the local queue. The
// caller (heteroprio's pop path, under policy_mutex) is responsible for
// respecting Capacity; PushLocal does not enforce it. The refill in the pop
// path sizes its budget as Capacity minus LocalLen, so it stays within it.
func (w *Wrapper) PushLocal(t *bucket.Task) {
	w.mu.Lock()
	w.local = append(w.local, t)
	w.mu.Unlock()
}

// PopLocalFront removes and returns the oldest locally prefetched task, the
// normal path for a worker serving its own queue.
func (w *Wrapper) PopLocalFront() *bucket.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.local) == 0 {
		return nil
	}
	t := w.local[0]
	w.local = w.local[1:]
	return t
}

// PeekLocal returns a snapshot of up to n tasks from the front of the local
// queue without removing them, used to drive the best-effort prefetch hint
// after a refill without re-taking ownership of the tasks.
func (w *Wrapper) PeekLocal(n int) []*bucket.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n > len(w.local) {
		n = len(w.local)
	}
	out := make([]*bucket.Task, n)
	copy(out, w.local[:n])
	return out
}

// TryStealBack attempts to take the newest locally prefetched task from the
// back of this worker's queue without blocking. It reports false if the
// worker's lock is currently held by someone else (the TransientContention
// case in schederr) or if the queue turned out empty once locked — matching
// heteroprio.c's steal path, which re-checks emptiness after acquiring the
// victim's worker_sched_mutex rather than trusting a stale read. Stealing
// from the back, not the front, leaves the victim's own next pop undisturbed.
func (w *Wrapper) TryStealBack() (*bucket.Task, bool) {
	if !w.mu.TryLock() {
		return nil, false
	}
	defer w.mu.Unlock()
	n := len(w.local)
	if n == 0 {
		return nil, false
	}
	t := w.local[n-1]
	w.local = w.local[:n-1]
	return t, true
}

// SetWaiting marks this worker parked, awaiting a wake signal.
func (w *Wrapper) SetWaiting(v bool) {
	w.mu.Lock()
	w.waiting = v
	w.mu.Unlock()
}

// Waiting reports whether this worker is currently parked.
func (w *Wrapper) Waiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waiting
}

// Wake signals the worker's condition variable, clearing its waiter bit.
// Safe to call whether or not the worker is actually asleep.
func (w *Wrapper) Wake() {
	w.mu.Lock()
	w.waiting = false
	w.mu.Unlock()
	w.cond.Signal()
}

// ClearWaiting atomically clears the waiter bit and reports whether it was
// set beforehand. Callers that scan several workers for an eligible waiter
// under their own lock (heteroprio's policy_mutex) must use this instead of
// Waiting()+Wake(): checking and clearing in one step is what makes the
// scan-then-wake sequence atomic with respect to a concurrent scan picking
// the same worker. Call Signal, not Wake, once the scanning lock is
// released, since the bit is already cleared.
func (w *Wrapper) ClearWaiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.waiting {
		return false
	}
	w.waiting = false
	return true
}

// Signal wakes this worker's condition variable without touching the
// waiter bit. Pair with a prior ClearWaiting that returned true.
func (w *Wrapper) Signal() {
	w.cond.Signal()
}

// Park blocks the calling goroutine (the worker's own execution loop) on
// its condition variable until its waiter bit is cleared and it is
// signalled: by Wake, or by ClearWaiting followed by Signal.
func (w *Wrapper) Park() {
	w.mu.Lock()
	w.waiting = true
	for w.waiting {
		w.cond.Wait()
	}
	w.mu.Unlock()
}
