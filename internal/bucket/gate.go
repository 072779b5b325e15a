package bucket

import "github.com/starpu-go/heteroprio/internal/arch"

// CanPull implements the slow-factor affinity gate exactly as
// pop_task_heteroprio_policy in heteroprio.c computes it:
//
//	bucket->factor_base_arch_index == 0
//	|| worker->arch_index == bucket->factor_base_arch_index
//	|| (float)bucket->tasks_queue->ntasks / (float)nb_workers_per_arch[factor_base]
//	     >= bucket->slow_factors_per_index[worker->arch_index]
//
// nbWorkersAtBase is the live worker count for the bucket's factor-base
// architecture; the division is performed in float64 to match the original
// cast-to-float arithmetic, per the Open Question decision recorded in
// DESIGN.md.
func (b *Bucket) CanPull(workerArchIdx arch.Index, nbWorkersAtBase int) bool {
	base, set := b.factorBaseArch, b.factorBaseSet
	if !set {
		return true
	}
	if workerArchIdx == base {
		return true
	}
	if nbWorkersAtBase <= 0 {
		// No worker of the base architecture is attached: nothing can
		// establish the ratio, so the slower architecture is free to pull.
		return true
	}
	ratio := float64(b.Len()) / float64(nbWorkersAtBase)
	return ratio >= b.slowFactors[workerArchIdx]
}
