// Package bucket implements the priority-bucket FIFO and its architecture
// mapping, the unit heteroprio pulls tasks through on the way to a worker.
package bucket

import "github.com/starpu-go/heteroprio/internal/arch"

// Bucket is a priority-indexed FIFO of tasks plus the architecture metadata
// that governs which workers may pull from it and under what slow-factor
// condition. It is grounded directly on _heteroprio_bucket from
// heteroprio.c: a bucket owns its queue, its valid_archs mask, and a
// per-architecture slow factor table expressed relative to factorBaseArch.
type Bucket struct {
	queue *fifo

	validArchs arch.Type

	// slowFactors[idx] is the weight applied to architecture idx when
	// deciding whether it may pull from this bucket yet. Every index,
	// including 0, is a real architecture; whether a factor base is set at
	// all is tracked separately by factorBaseSet.
	slowFactors [arch.NbArchTypes]float64

	factorBaseArch arch.Index
	factorBaseSet  bool
}

// NewBucket returns an empty, unconfigured Bucket.
func NewBucket() *Bucket {
	return &Bucket{queue: newFifo()}
}

// ValidArchs reports the architecture mask this bucket currently serves.
func (b *Bucket) ValidArchs() arch.Type {
	return b.validArchs
}

// AddValidArch extends the bucket's served architecture set. Called by
// SetMapping when a new architecture is routed into this bucket.
func (b *Bucket) AddValidArch(a arch.Type) {
	b.validArchs |= a
}

// SetFasterArch designates a as this bucket's fastest architecture: slow
// factors are expressed relative to it, and a itself is exempt from the
// gate (its own slow factor is forced to zero). Mirrors
// starpu_heteroprio_set_faster_arch.
func (b *Bucket) SetFasterArch(a arch.Type) {
	idx := arch.ToIndex(a)
	b.factorBaseArch = idx
	b.factorBaseSet = true
	b.slowFactors[idx] = 0
}

// SetSlowFactor records the weight architecture a must see accumulate in
// this bucket, relative to the faster architecture's worker count, before it
// may pull from it. Mirrors starpu_heteroprio_set_arch_slow_factor.
func (b *Bucket) SetSlowFactor(a arch.Type, factor float64) {
	b.slowFactors[arch.ToIndex(a)] = factor
}

// FactorBase returns the bucket's designated fastest architecture index and
// whether one has been set at all.
func (b *Bucket) FactorBase() (arch.Index, bool) {
	return b.factorBaseArch, b.factorBaseSet
}

// SlowFactor returns the configured slow factor for architecture index idx.
func (b *Bucket) SlowFactor(idx arch.Index) float64 {
	return b.slowFactors[idx]
}

// PushBack enqueues a task at the back of the bucket.
func (b *Bucket) PushBack(t *Task) {
	b.queue.pushBack(t)
}

// PopFront dequeues the oldest task, or nil if the bucket is empty.
func (b *Bucket) PopFront() *Task {
	return b.queue.popFront()
}

// Empty reports whether the bucket currently holds no tasks.
func (b *Bucket) Empty() bool {
	return b.queue.empty()
}

// Len returns the number of tasks currently queued in the bucket.
func (b *Bucket) Len() int {
	return b.queue.ntasks()
}
