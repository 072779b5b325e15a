// Command heteroprio runs a demo process hosting one or more heteroprio
// scheduling contexts behind the hypervisor, feeding them a synthetic
// workload and exposing Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/bucket"
	"github.com/starpu-go/heteroprio/internal/config"
	"github.com/starpu-go/heteroprio/internal/heteroprio"
	"github.com/starpu-go/heteroprio/internal/hypervisor"
	"github.com/starpu-go/heteroprio/internal/hypervisor/policy"
	"github.com/starpu-go/heteroprio/internal/metrics"
	"github.com/starpu-go/heteroprio/internal/runtimelog"
	"github.com/starpu-go/heteroprio/internal/schedctx"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "heteroprio",
		Short:   "Heteroprio scheduling context demo host",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, $HOME/.heteroprio, /etc/heteroprio)")
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start contexts, a hypervisor, and a synthetic workload",
		RunE:  runServe,
	}
	cmd.Flags().Int("contexts", 2, "number of scheduling contexts to create")
	cmd.Flags().Int("cpu-workers", 4, "CPU workers attached to the first context")
	cmd.Flags().Int("cuda-workers", 2, "CUDA workers attached to the first context")
	cmd.Flags().Int("tasks-per-context", 200, "synthetic tasks pushed into each context")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	runtimelog.Configure(runtimelog.Options{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})

	nContexts, _ := cmd.Flags().GetInt("contexts")
	cpuWorkers, _ := cmd.Flags().GetInt("cpu-workers")
	cudaWorkers, _ := cmd.Flags().GetInt("cuda-workers")
	tasksPerContext, _ := cmd.Flags().GetInt("tasks-per-context")

	coll := metrics.NewCollector(&metrics.Config{
		ListenAddress: cfg.Metrics.Listen,
		MetricsPath:   cfg.Metrics.Path,
		Namespace:     cfg.Metrics.Namespace,
		Subsystem:     cfg.Metrics.Subsystem,
	})
	if cfg.Metrics.Enabled {
		coll.Start()
		log.Info().Str("listen", cfg.Metrics.Listen).Str("path", cfg.Metrics.Path).Msg("metrics server started")
	}

	pol, err := buildPolicy(cfg.Hypervisor.Policy)
	if err != nil {
		return err
	}
	hv := hypervisor.New(hypervisor.Config{
		MinTasks:           cfg.Hypervisor.MinTasks,
		DefaultMinWorkers:  cfg.Hypervisor.DefaultMinWorkers,
		DefaultMaxWorkers:  cfg.Hypervisor.DefaultMaxWorkers,
		DefaultGranularity: cfg.Hypervisor.DefaultGranularity,
		DefaultMaxIdle:     cfg.Hypervisor.DefaultMaxIdle,
		NewWorkersMaxIdle:  cfg.Hypervisor.NewWorkersMaxIdle,
	}, pol, coll.Hypervisor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < nContexts; i++ {
		name := fmt.Sprintf("ctx-%d", i)
		sctx := schedctx.New(name, heteroprio.Config{MaxPrio: cfg.Scheduler.MaxPrio, MaxPrefetch: cfg.Scheduler.MaxPrefetch}, coll.Scheduler)

		// The first context gets the configured CPU and CUDA workers; every
		// later context starts with a single CPU worker, and the hypervisor
		// moves workers between contexts as it resizes them.
		if i == 0 {
			for w := 0; w < cpuWorkers; w++ {
				sctx.AddWorker(arch.CPU)
			}
			for w := 0; w < cudaWorkers; w++ {
				sctx.AddWorker(arch.CUDA)
			}
		} else {
			sctx.AddWorker(arch.CPU)
		}

		if err := sctx.Scheduler().InitSched(); err != nil {
			return fmt.Errorf("init context %s: %w", name, err)
		}

		totalFlops := float64(tasksPerContext) * 1e6
		hv.HandleContext(sctx, totalFlops)

		for _, id := range sctx.Scheduler().WorkerIDs() {
			wg.Add(1)
			go runWorkerLoop(ctx, &wg, sctx, id)
		}

		wg.Add(1)
		go generateWorkload(ctx, &wg, sctx, tasksPerContext)

		log.Info().Str("ctx", name).Int("workers", len(sctx.Scheduler().WorkerIDs())).Msg("context online")
	}

	if cfg.Hypervisor.ResizeCheckPeriod > 0 {
		wg.Add(1)
		go driveIdlePolicy(ctx, &wg, hv, cfg.Hypervisor.ResizeCheckPeriod)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	cancel()
	wg.Wait()
	hv.Shutdown()
	if err := coll.Stop(); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown error")
	}
	return nil
}

func buildPolicy(name string) (policy.Policy, error) {
	switch name {
	case "", "idle":
		return policy.Idle{}, nil
	case "app_driven":
		return policy.AppDriven{}, nil
	case "gflops_rate":
		return policy.GflopsRate{}, nil
	default:
		return nil, fmt.Errorf("unknown hypervisor policy %q", name)
	}
}

// generateWorkload pushes n synthetic tasks into sctx at a modest pace, each
// with a random priority, architecture requirement, and flops cost, then
// stops. It mirrors an application's task-submission loop closely enough to
// exercise push, the affinity gate, and the hypervisor's pushed-task hook.
func generateWorkload(ctx context.Context, wg *sync.WaitGroup, sctx *schedctx.Context, n int) {
	defer wg.Done()
	sched := sctx.Scheduler()
	archs := []arch.Type{arch.CPU, arch.CUDA}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		t := &bucket.Task{
			ID:       fmt.Sprintf("%s-task-%d", sctx.Name, i),
			Priority: rand.Intn(sched.Mapping().MaxPrio()),
			Where:    archs[rand.Intn(len(archs))],
			Flops:    1e5 + rand.Float64()*9e5,
		}
		if err := sched.PushTask(t); err != nil {
			log.Debug().Err(err).Str("ctx", sctx.Name).Str("task", t.ID).Msg("push failed")
		}
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
}

// runWorkerLoop is the simulated worker core: pop a task, execute it (a
// sleep scaled to its flops), or park and report the idle sample once woken.
func runWorkerLoop(ctx context.Context, wg *sync.WaitGroup, sctx *schedctx.Context, id heteroprio.WorkerID) {
	defer wg.Done()
	sched := sctx.Scheduler()
	var idleSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, ok := sched.PopTask(id)
		if !ok {
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			sched.ParkWorker(id)
			if ctx.Err() != nil {
				return
			}
			sched.ReportIdle(id, time.Since(idleSince))
			idleSince = time.Time{}
			continue
		}

		if !idleSince.IsZero() {
			sched.ResetIdle(id)
			idleSince = time.Time{}
		}
		time.Sleep(time.Duration(t.Flops/1e6) * time.Millisecond)
	}
}

// driveIdlePolicy periodically runs an unforced hv.Resize for every tracked
// context, standing in for the idle samples the StarPU worker core would
// normally report on every empty pop. It calls Resize directly, whichever
// policy is installed; Resize does nothing for a context whose resize is
// not enabled.
func driveIdlePolicy(ctx context.Context, wg *sync.WaitGroup, hv *hypervisor.Hypervisor, period time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range hv.Contexts() {
				if err := hv.Resize(name, false); err != nil {
					log.Debug().Err(err).Str("ctx", name).Msg("periodic resize check declined")
				}
			}
		}
	}
}
