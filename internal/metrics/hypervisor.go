package metrics

import "github.com/prometheus/client_golang/prometheus"

// Hypervisor holds the Prometheus instrumentation the hypervisor package
// reports through: resize counts/latency and per-context flops-remaining
// percentage, grounded on the same registration pattern as Scheduler.
type Hypervisor struct {
	ResizesTotal      *prometheus.CounterVec
	ResizeLatency     prometheus.Histogram
	FlopsRemainingPct *prometheus.GaugeVec
	WorkersPerContext *prometheus.GaugeVec
}

func newHypervisor(cfg *Config, reg *prometheus.Registry) *Hypervisor {
	m := &Hypervisor{
		ResizesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "hypervisor",
			Name:      "resizes_total",
			Help:      "Total worker-reallocation resizes triggered, by sender context.",
		}, []string{"sender"}),
		ResizeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "hypervisor",
			Name:      "resize_ack_latency_seconds",
			Help:      "Time from issuing a resize to the receiver's acknowledgement completing.",
			Buckets:   prometheus.DefBuckets,
		}),
		FlopsRemainingPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "hypervisor",
			Name:      "flops_remaining_pct",
			Help:      "Percentage of a context's declared total flops not yet executed.",
		}, []string{"ctx"}),
		WorkersPerContext: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "hypervisor",
			Name:      "workers",
			Help:      "Current worker count attached to a scheduling context.",
		}, []string{"ctx"}),
	}
	reg.MustRegister(m.ResizesTotal, m.ResizeLatency, m.FlopsRemainingPct, m.WorkersPerContext)
	return m
}

// ObserveResize records one resize issued by sender.
func (m *Hypervisor) ObserveResize(sender string) {
	m.ResizesTotal.WithLabelValues(sender).Inc()
}

// ObserveResizeAckLatency records the seconds elapsed between issuing a
// resize and its acknowledgement completing.
func (m *Hypervisor) ObserveResizeAckLatency(seconds float64) {
	m.ResizeLatency.Observe(seconds)
}

// SetFlopsRemainingPct sets the current flops-remaining gauge for ctx.
func (m *Hypervisor) SetFlopsRemainingPct(ctx string, pct float64) {
	m.FlopsRemainingPct.WithLabelValues(ctx).Set(pct)
}

// SetWorkerCount sets the current attached-worker gauge for ctx.
func (m *Hypervisor) SetWorkerCount(ctx string, n int) {
	m.WorkersPerContext.WithLabelValues(ctx).Set(float64(n))
}
