package hypervisor

import (
	"sync"
	"time"

	"github.com/starpu-go/heteroprio/internal/worker"
)

// ResizeConfig holds the per-context tunables the resize algorithm and
// worker-selection rule read, mirroring sched_ctx_hypervisor's per-context
// config struct (min/max workers, granularity, idle thresholds, priorities,
// fixed-worker flags).
type ResizeConfig struct {
	MinWorkers        int
	MaxWorkers        int
	Granularity       int
	MaxIdle           map[worker.ID]time.Duration
	NewWorkersMaxIdle time.Duration
	Priority          map[worker.ID]int // lower value = selected first when workers are moved out
	Fixed             map[worker.ID]bool
}

func defaultResizeConfig(min, max, granularity int, newMaxIdle time.Duration) *ResizeConfig {
	return &ResizeConfig{
		MinWorkers:        min,
		MaxWorkers:        max,
		Granularity:       granularity,
		MaxIdle:           make(map[worker.ID]time.Duration),
		NewWorkersMaxIdle: newMaxIdle,
		Priority:          make(map[worker.ID]int),
		Fixed:             make(map[worker.ID]bool),
	}
}

func (c *ResizeConfig) priorityOf(id worker.ID) int {
	if p, ok := c.Priority[id]; ok {
		return p
	}
	return 0
}

func (c *ResizeConfig) maxIdleOf(id worker.ID) time.Duration {
	if d, ok := c.MaxIdle[id]; ok {
		return d
	}
	return c.NewWorkersMaxIdle
}

// resizeAck tracks the two-phase handshake from sched_ctx_hypervisor.c: a
// move is not complete until every moved worker has executed at least one
// task under the receiver.
type resizeAck struct {
	receiver     string
	movedWorkers []worker.ID
	issuedAt     time.Time
}

// contextWrapper is the hypervisor-side accounting state for one scheduling
// context, mirroring struct sc_hypervisor_wrapper in sched_ctx_hypervisor.c.
type contextWrapper struct {
	mu sync.Mutex

	name   string
	config *ResizeConfig

	totalFlops     float64
	remainingFlops float64

	startTime time.Time

	currentIdleTime map[worker.ID]time.Duration
	elapsedFlops    map[worker.ID]float64
	totalElapsed    map[worker.ID]float64
	pushedTasks     map[worker.ID]int64
	popedTasks      map[worker.ID]int64

	totalPushed int64

	resizeEnabled bool
	pendingAck    *resizeAck
}

func newContextWrapper(name string, totalFlops float64, cfg *ResizeConfig) *contextWrapper {
	return &contextWrapper{
		name:            name,
		config:          cfg,
		totalFlops:      totalFlops,
		remainingFlops:  totalFlops,
		currentIdleTime: make(map[worker.ID]time.Duration),
		elapsedFlops:    make(map[worker.ID]float64),
		totalElapsed:    make(map[worker.ID]float64),
		pushedTasks:     make(map[worker.ID]int64),
		popedTasks:      make(map[worker.ID]int64),
	}
}

func (w *contextWrapper) flopsRemainingPct() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.totalFlops <= 0 {
		return 0
	}
	pct := (w.remainingFlops / w.totalFlops) * 100
	if pct < 0 {
		pct = 0
	}
	return pct
}
