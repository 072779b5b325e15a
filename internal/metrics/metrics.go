// Package metrics exposes the scheduler's and hypervisor's Prometheus
// instrumentation: bucket depth, prefetch depth, steal and resize counts,
// and hypervisor flops-remaining percentage.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the metrics HTTP server.
type Config struct {
	ListenAddress string
	MetricsPath   string
	Namespace     string
	Subsystem     string
}

// DefaultConfig returns reasonable defaults for a locally run process.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: "0.0.0.0:9090",
		MetricsPath:   "/metrics",
		Namespace:     "heteroprio",
		Subsystem:     "scheduler",
	}
}

// Collector owns the Prometheus registry and HTTP exporter for one process.
// Scheduler and Hypervisor instrumentation (see scheduler.go, hypervisor.go
// in this package) register against it.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	Scheduler  *Scheduler
	Hypervisor *Hypervisor

	server *http.Server
}

// NewCollector builds a Collector and registers both instrumentation sets.
// cfg may be nil, in which case DefaultConfig is used.
func NewCollector(cfg *Config) *Collector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	registry := prometheus.NewRegistry()
	c := &Collector{
		config:     cfg,
		registry:   registry,
		Scheduler:  newScheduler(cfg, registry),
		Hypervisor: newHypervisor(cfg, registry),
	}
	return c
}

// Start serves the metrics endpoint in a background goroutine.
func (c *Collector) Start() {
	mux := http.NewServeMux()
	mux.Handle(c.config.MetricsPath, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	c.server = &http.Server{
		Addr:    c.config.ListenAddress,
		Handler: mux,
	}
	go func() {
		_ = c.server.ListenAndServe()
	}()
}

// Stop shuts the metrics server down, waiting up to 5 seconds for
// in-flight scrapes to finish.
func (c *Collector) Stop() error {
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}
