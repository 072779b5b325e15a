package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerCounters(t *testing.T) {
	c := NewCollector(DefaultConfig())
	c.Scheduler.ObservePush("ctx0", 5)
	c.Scheduler.ObservePush("ctx0", 5)
	c.Scheduler.ObservePop("ctx0", 5)
	c.Scheduler.ObserveSteal("ctx0")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.Scheduler.TasksPushed.WithLabelValues("ctx0", "5")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Scheduler.TasksPopped.WithLabelValues("ctx0", "5")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Scheduler.StealsTotal.WithLabelValues("ctx0")))
}

func TestHypervisorGauges(t *testing.T) {
	c := NewCollector(DefaultConfig())
	c.Hypervisor.SetFlopsRemainingPct("ctx0", 42.5)
	c.Hypervisor.SetWorkerCount("ctx0", 3)
	c.Hypervisor.ObserveResize("ctx0")

	assert.Equal(t, 42.5, testutil.ToFloat64(c.Hypervisor.FlopsRemainingPct.WithLabelValues("ctx0")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.Hypervisor.WorkersPerContext.WithLabelValues("ctx0")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Hypervisor.ResizesTotal.WithLabelValues("ctx0")))
}

func TestNewCollectorDefaultsOnNilConfig(t *testing.T) {
	c := NewCollector(nil)
	assert.Equal(t, "heteroprio", c.config.Namespace)
}
