package bucket

import (
	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/schederr"
)

// Mapping owns the full bucket array for one scheduling context plus the
// per-architecture priority-to-bucket view, mirroring the fields of
// _starpu_heteroprio_data in heteroprio.c that are not per-worker: buckets,
// nb_prio_per_arch_index, and prio_mapping_per_arch_index.
type Mapping struct {
	maxPrio int
	buckets []*Bucket // len == maxPrio, indexed by bucket id

	nbPrioPerArch  [arch.NbArchTypes]int
	prioToBucketID [arch.NbArchTypes][]int // [arch][source_prio] -> bucket id

	configured bool
}

// NewMapping allocates maxPrio empty buckets. maxPrio must be positive; it
// corresponds to STARPU_HETEROPRIO_MAX_PRIO.
func NewMapping(maxPrio int) *Mapping {
	if maxPrio <= 0 {
		schederr.Invariant("bucket: NewMapping requires maxPrio > 0, got %d", maxPrio)
	}
	m := &Mapping{maxPrio: maxPrio, buckets: make([]*Bucket, maxPrio)}
	for i := range m.buckets {
		m.buckets[i] = NewBucket()
	}
	for a := 0; a < arch.NbArchTypes; a++ {
		m.prioToBucketID[a] = make([]int, maxPrio)
		for p := range m.prioToBucketID[a] {
			m.prioToBucketID[a][p] = -1
		}
	}
	return m
}

// MaxPrio returns the number of bucket slots this mapping was allocated with.
func (m *Mapping) MaxPrio() int {
	return m.maxPrio
}

// Bucket returns the bucket at id, or nil if id is out of range.
func (m *Mapping) Bucket(id int) *Bucket {
	if id < 0 || id >= len(m.buckets) {
		return nil
	}
	return m.buckets[id]
}

// SetNbPrios declares that architecture a uses n priority levels, mirroring
// starpu_heteroprio_set_nb_prios. n must not exceed MaxPrio.
func (m *Mapping) SetNbPrios(a arch.Type, n int) error {
	if n < 0 || n > m.maxPrio {
		return schederr.Config("set_nb_prios: arch %v requested %d priorities, max is %d", a, n, m.maxPrio)
	}
	m.nbPrioPerArch[arch.ToIndex(a)] = n
	m.configured = true
	return nil
}

// NbPrios returns the number of priority levels configured for a.
func (m *Mapping) NbPrios(a arch.Type) int {
	return m.nbPrioPerArch[arch.ToIndex(a)]
}

// SetMapping routes priority sourcePrio, as seen by architecture a, to
// bucketID, and marks a as a valid puller of that bucket. Mirrors
// starpu_heteroprio_set_mapping.
func (m *Mapping) SetMapping(a arch.Type, sourcePrio, bucketID int) error {
	if bucketID < 0 || bucketID >= len(m.buckets) {
		return schederr.Config("set_mapping: bucket id %d out of range [0,%d)", bucketID, len(m.buckets))
	}
	idx := arch.ToIndex(a)
	if sourcePrio < 0 || sourcePrio >= len(m.prioToBucketID[idx]) {
		return schederr.Config("set_mapping: source prio %d out of range for arch %v", sourcePrio, a)
	}
	m.prioToBucketID[idx][sourcePrio] = bucketID
	m.buckets[bucketID].AddValidArch(a)
	m.configured = true
	return nil
}

// BucketForPrio returns the bucket id architecture a should look in for its
// idx-th priority level, or -1 if unmapped.
func (m *Mapping) BucketForPrio(a arch.Type, idxPrio int) int {
	idx := arch.ToIndex(a)
	if idxPrio < 0 || idxPrio >= len(m.prioToBucketID[idx]) {
		return -1
	}
	return m.prioToBucketID[idx][idxPrio]
}

// ApplyDefaultIfUnconfigured installs an identity mapping — every
// architecture in knownArchs gets MaxPrio priority levels mapped 1:1 to
// bucket ids — if no SetNbPrios/SetMapping call has been made yet. Mirrors
// default_init_sched in heteroprio.c, which installs exactly this fallback
// when the user never configures priorities.
func (m *Mapping) ApplyDefaultIfUnconfigured(knownArchs []arch.Type) {
	if m.configured {
		return
	}
	for _, a := range knownArchs {
		_ = m.SetNbPrios(a, m.maxPrio)
		for p := 0; p < m.maxPrio; p++ {
			_ = m.SetMapping(a, p, p)
		}
	}
}

// CheckConsistency re-implements the assertions in
// initialize_heteroprio_policy: every mapped priority must point to a
// bucket whose valid_archs includes the mapping architecture, every bucket
// with an arch bit set in valid_archs must be targeted by that arch's own
// mapping exactly once, and every slow factor must be non-negative. It
// returns a schederr.ErrConfig-wrapped error rather than aborting, since
// this check runs before any task is accepted and the caller can still
// recover by fixing configuration.
func (m *Mapping) CheckConsistency(knownArchs []arch.Type) error {
	hits := make([][arch.NbArchTypes]int, len(m.buckets))

	for _, a := range knownArchs {
		idx := arch.ToIndex(a)
		n := m.nbPrioPerArch[idx]
		for p := 0; p < n; p++ {
			bid := m.prioToBucketID[idx][p]
			if bid < 0 {
				return schederr.Config("arch %v declares %d priorities but prio %d is unmapped", a, n, p)
			}
			b := m.buckets[bid]
			if !b.ValidArchs().Has(a) {
				return schederr.Config("arch %v maps prio %d to bucket %d, but bucket does not list %v as valid", a, p, bid, a)
			}
			hits[bid][idx]++
		}
	}

	for bid, b := range m.buckets {
		for i := 0; i < arch.NbArchTypes; i++ {
			at := arch.ToType(arch.Index(i))
			if !b.ValidArchs().Has(at) {
				continue
			}
			if hits[bid][i] != 1 {
				return schederr.Config("bucket %d lists %v as valid but it is targeted by %d of that arch's mapped priorities, want exactly 1", bid, at, hits[bid][i])
			}
		}
	}

	for _, b := range m.buckets {
		base, set := b.FactorBase()
		for i := 0; i < arch.NbArchTypes; i++ {
			if set && arch.Index(i) == base {
				continue
			}
			if b.SlowFactor(arch.Index(i)) < 0 {
				return schederr.Config("bucket has negative slow factor for arch index %d", i)
			}
		}
	}
	return nil
}
