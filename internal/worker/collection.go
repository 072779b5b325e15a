package worker

import (
	"sync"

	"github.com/starpu-go/heteroprio/internal/arch"
)

// Collection holds every Wrapper attached to one scheduling context and
// supports the circular steal scan and per-architecture worker counts that
// heteroprio's pop path needs.
type Collection struct {
	mu       sync.RWMutex
	byID     map[ID]*Wrapper
	order    []ID // stable iteration order for the circular scan
	perArch  [arch.NbArchTypes]int
	nextID   ID
}

// NewCollection returns an empty worker collection.
func NewCollection() *Collection {
	return &Collection{byID: make(map[ID]*Wrapper)}
}

// Add attaches a new worker of architecture a with the given local-queue
// capacity and returns its Wrapper. Mirrors add_workers_heteroprio_policy.
func (c *Collection) Add(a arch.Type, capacity int) *Wrapper {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	w := NewWrapper(id, a, capacity)
	c.byID[id] = w
	c.order = append(c.order, id)
	c.perArch[arch.ToIndex(a)]++
	return w
}

// Remove detaches a worker. Mirrors remove_workers_heteroprio_policy.
func (c *Collection) Remove(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	c.perArch[w.ArchIndex()]--
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Get returns the Wrapper for id, or nil if not attached.
func (c *Collection) Get(id ID) *Wrapper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// CountArch returns the number of attached workers of architecture a,
// i.e. nb_workers_per_arch_index[arch].
func (c *Collection) CountArch(a arch.Type) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.perArch[arch.ToIndex(a)]
}

// CountArchIndex is CountArch addressed by dense index, used by the
// slow-factor gate which only has the factor-base index on hand.
func (c *Collection) CountArchIndex(idx arch.Index) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.perArch[idx]
}

// Len returns the total number of attached workers across all architectures.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// IDs returns a snapshot of attached worker ids in stable order.
func (c *Collection) IDs() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ID, len(c.order))
	copy(out, c.order)
	return out
}

// StealCandidates returns attached worker ids of architecture a in circular
// order starting just after from, excluding from itself. This is the exact
// scan order pop_task_heteroprio_policy uses: "start looking at the worker
// following the one that called pop, wrap around, never revisit."
func (c *Collection) StealCandidates(from ID, a arch.Type) []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.order)
	if n == 0 {
		return nil
	}
	start := 0
	for i, id := range c.order {
		if id == from {
			start = i
			break
		}
	}
	out := make([]ID, 0, n-1)
	for i := 1; i < n; i++ {
		id := c.order[(start+i)%n]
		w := c.byID[id]
		if w != nil && w.ArchType() == a {
			out = append(out, id)
		}
	}
	return out
}

// Each calls fn for every attached Wrapper, in stable order. fn must not
// mutate the collection.
func (c *Collection) Each(fn func(*Wrapper)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		fn(c.byID[id])
	}
}
