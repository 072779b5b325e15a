package bucket

import "github.com/starpu-go/heteroprio/internal/arch"

// Task is the minimal shape the scheduler needs from a unit of work: a
// priority selecting its bucket and the set of architectures it may run on.
// Callers embed this (or satisfy it with their own richer task type) — the
// scheduler never inspects anything else about a task.
type Task struct {
	ID       string
	Priority int
	Where    arch.Type
	// Flops is an optional estimate of the work's cost, reported to the
	// scheduler's hook when the task is popped; the hypervisor subtracts it
	// from the context's remaining flops. A zero value subtracts nothing,
	// and no policy falls back to task counts.
	Flops float64
}
