package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Scheduler holds the Prometheus instrumentation the heteroprio package
// reports through: one field per signal, registered together in the
// constructor.
type Scheduler struct {
	TasksPushed   *prometheus.CounterVec
	TasksPopped   *prometheus.CounterVec
	StealsTotal   *prometheus.CounterVec
	BucketDepth   *prometheus.GaugeVec
	PrefetchDepth *prometheus.GaugeVec
}

func newScheduler(cfg *Config, reg *prometheus.Registry) *Scheduler {
	m := &Scheduler{
		TasksPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tasks_pushed_total",
			Help:      "Total tasks pushed into a scheduling context, by priority.",
		}, []string{"ctx", "priority"}),
		TasksPopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tasks_popped_total",
			Help:      "Total tasks popped by a worker, by priority.",
		}, []string{"ctx", "priority"}),
		StealsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "steals_total",
			Help:      "Total successful work-steals from a peer worker's local queue.",
		}, []string{"ctx"}),
		BucketDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "bucket_depth",
			Help:      "Current number of tasks queued in a priority bucket.",
		}, []string{"ctx", "bucket"}),
		PrefetchDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "prefetch_depth",
			Help:      "Current number of tasks prefetched into a worker's local queue.",
		}, []string{"ctx", "worker"}),
	}
	reg.MustRegister(m.TasksPushed, m.TasksPopped, m.StealsTotal, m.BucketDepth, m.PrefetchDepth)
	return m
}

// ObservePush records one pushed task for ctx at priority.
func (m *Scheduler) ObservePush(ctx string, priority int) {
	m.TasksPushed.WithLabelValues(ctx, strconv.Itoa(priority)).Inc()
}

// ObservePop records one popped task for ctx at priority.
func (m *Scheduler) ObservePop(ctx string, priority int) {
	m.TasksPopped.WithLabelValues(ctx, strconv.Itoa(priority)).Inc()
}

// ObserveSteal records one successful steal within ctx.
func (m *Scheduler) ObserveSteal(ctx string) {
	m.StealsTotal.WithLabelValues(ctx).Inc()
}

// SetBucketDepth sets the current depth gauge for one bucket.
func (m *Scheduler) SetBucketDepth(ctx, bucket string, depth int) {
	m.BucketDepth.WithLabelValues(ctx, bucket).Set(float64(depth))
}

// SetPrefetchDepth sets the current prefetch-queue depth gauge for one worker.
func (m *Scheduler) SetPrefetchDepth(ctx, worker string, depth int) {
	m.PrefetchDepth.WithLabelValues(ctx, worker).Set(float64(depth))
}
