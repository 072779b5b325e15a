// Package schedctx defines the Scheduling Context: a named worker set with
// an attached heteroprio scheduler, the unit the hypervisor resizes across.
package schedctx

import (
	"sync"

	"github.com/google/uuid"

	"github.com/starpu-go/heteroprio/internal/arch"
	"github.com/starpu-go/heteroprio/internal/heteroprio"
	"github.com/starpu-go/heteroprio/internal/metrics"
)

// Context is an isolated scheduler instance with its own worker set, plus
// an optional parent context it was split from. Mirrors the scheduling
// context abstraction in spec.md §3, scoped to the fields heteroprio and
// the hypervisor actually need (full submission-side context semantics,
// such as task dependency graphs, are out of this module's scope).
type Context struct {
	ID   uuid.UUID
	Name string

	mu     sync.RWMutex
	sched  *heteroprio.Scheduler
	parent *Context
}

// New constructs a Context named name with its own heteroprio scheduler.
func New(name string, cfg heteroprio.Config, m *metrics.Scheduler) *Context {
	return &Context{
		ID:    uuid.New(),
		Name:  name,
		sched: heteroprio.New(name, cfg, m),
	}
}

// Scheduler returns the context's heteroprio scheduler.
func (c *Context) Scheduler() *heteroprio.Scheduler {
	return c.sched
}

// SetParent records the context this one was split from. The hypervisor's
// receiver selection does not consult it.
func (c *Context) SetParent(p *Context) {
	c.mu.Lock()
	c.parent = p
	c.mu.Unlock()
}

// Parent returns the context this one was split from, or nil.
func (c *Context) Parent() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

// AddWorker attaches a worker of architecture a to this context's scheduler.
func (c *Context) AddWorker(a arch.Type) heteroprio.WorkerID {
	return c.sched.AddWorker(a)
}

// RemoveWorker detaches a worker from this context's scheduler.
func (c *Context) RemoveWorker(id heteroprio.WorkerID) {
	c.sched.RemoveWorker(id)
}
