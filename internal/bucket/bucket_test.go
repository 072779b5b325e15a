package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starpu-go/heteroprio/internal/arch"
)

func TestFifoOrderingFrontAndBack(t *testing.T) {
	f := newFifo()
	a, b, c := &Task{ID: "a"}, &Task{ID: "b"}, &Task{ID: "c"}
	f.pushBack(a)
	f.pushBack(b)
	f.pushBack(c)

	assert.Equal(t, a, f.popFront())
	assert.Equal(t, c, f.popBack())
	assert.Equal(t, b, f.popFront())
	assert.True(t, f.empty())
}

func TestBucketValidArchsAccumulate(t *testing.T) {
	b := NewBucket()
	b.AddValidArch(arch.CPU)
	b.AddValidArch(arch.CUDA)
	assert.True(t, b.ValidArchs().Has(arch.CPU))
	assert.True(t, b.ValidArchs().Has(arch.CUDA))
}

func TestGateAllowsFactorBaseAlways(t *testing.T) {
	b := NewBucket()
	b.SetFasterArch(arch.CUDA)
	b.SetSlowFactor(arch.CPU, 10)
	for i := 0; i < 5; i++ {
		b.PushBack(&Task{})
	}
	assert.True(t, b.CanPull(arch.ToIndex(arch.CUDA), 1), "factor base arch should always be allowed to pull")
}

func TestGateBlocksUntilRatioMet(t *testing.T) {
	b := NewBucket()
	b.SetFasterArch(arch.CUDA)
	b.SetSlowFactor(arch.CPU, 4)

	// nbWorkersAtBase=1, 3 tasks queued: ratio 3 < 4, should block.
	for i := 0; i < 3; i++ {
		b.PushBack(&Task{})
	}
	assert.False(t, b.CanPull(arch.ToIndex(arch.CPU), 1), "expected gate to block CPU before ratio reaches slow factor")

	// One more task: ratio 4 >= 4, should now allow.
	b.PushBack(&Task{})
	assert.True(t, b.CanPull(arch.ToIndex(arch.CPU), 1), "expected gate to allow CPU once ratio reaches slow factor")
}

func TestGateUnsetFactorBaseAlwaysAllows(t *testing.T) {
	b := NewBucket()
	assert.True(t, b.CanPull(arch.ToIndex(arch.CPU), 1), "expected no factor base configured to always allow pulling")
}

func TestMappingDefaultIdentityMapping(t *testing.T) {
	m := NewMapping(8)
	m.ApplyDefaultIfUnconfigured([]arch.Type{arch.CPU, arch.CUDA})

	assert.Equal(t, 8, m.NbPrios(arch.CPU))
	assert.Equal(t, 3, m.BucketForPrio(arch.CPU, 3))
	assert.NoError(t, m.CheckConsistency([]arch.Type{arch.CPU, arch.CUDA}))
}

func TestMappingExplicitConfigSkipsDefault(t *testing.T) {
	m := NewMapping(4)
	require.NoError(t, m.SetNbPrios(arch.CPU, 1))
	require.NoError(t, m.SetMapping(arch.CPU, 0, 2))
	m.ApplyDefaultIfUnconfigured([]arch.Type{arch.CPU})

	assert.Equal(t, 1, m.NbPrios(arch.CPU), "expected explicit config to survive")
	assert.Equal(t, 2, m.BucketForPrio(arch.CPU, 0))
}

func TestMappingConsistencyCatchesUnmappedPrio(t *testing.T) {
	m := NewMapping(4)
	require.NoError(t, m.SetNbPrios(arch.CPU, 2))
	require.NoError(t, m.SetMapping(arch.CPU, 0, 0))
	// prio 1 never mapped.
	assert.Error(t, m.CheckConsistency([]arch.Type{arch.CPU}), "expected consistency check to fail for unmapped prio")
}

func TestMappingConsistencyCatchesDuplicateBucketTarget(t *testing.T) {
	m := NewMapping(4)
	require.NoError(t, m.SetNbPrios(arch.CPU, 2))
	require.NoError(t, m.SetMapping(arch.CPU, 0, 0))
	require.NoError(t, m.SetMapping(arch.CPU, 1, 0))
	// Both CPU priorities alias onto bucket 0: forward checks pass since
	// bucket 0 does list CPU as valid, but no arch uniquely owns it.
	assert.Error(t, m.CheckConsistency([]arch.Type{arch.CPU}), "expected consistency check to reject two priorities aliased onto one bucket")
}

func TestSetMappingRejectsOutOfRangeBucket(t *testing.T) {
	m := NewMapping(4)
	assert.Error(t, m.SetMapping(arch.CPU, 0, 99), "expected error for out-of-range bucket id")
}
