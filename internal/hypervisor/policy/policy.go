// Package policy defines the pluggable hypervisor resize strategies:
// idle-driven, application-driven, and gflops-rate, behind one interface,
// grounded on _load_hypervisor_policy's tagged dispatch in
// sched_ctx_hypervisor.c. Each concrete policy differs only in its trigger
// condition; all three drive the same resize through the Driver interface.
package policy

// Driver is the subset of *hypervisor.Hypervisor a Policy needs to carry
// out a resize decision. Defined here, rather than in the hypervisor
// package, so policy has no import edge back to hypervisor — the
// dependency runs one way, hypervisor -> policy, matching how
// _load_hypervisor_policy selects a policy struct without the policy
// needing to know about the hypervisor's internal layout.
type Driver interface {
	// Resize attempts to move workers out of senderCtx. It returns an error
	// when the attempt could not run (lock contention on an unforced call,
	// an unknown context); a resize that finds nothing to move returns nil.
	Resize(senderCtx string, forced bool) error
	// FlopsRemainingPct returns ctx's current flops-remaining percentage.
	FlopsRemainingPct(ctx string) float64
	// Contexts returns every context name currently tracked.
	Contexts() []string
}

// Policy decides when a context's worker set should be resized and defers
// the mechanics of the move to Driver.Resize.
type Policy interface {
	// Name identifies the policy, used in logs and the config surface.
	Name() string
	// OnIdleExceeded is called when a worker's idle sample crosses its
	// max_idle threshold, mirroring idle_time_cb's idle_policy.handle_idle_cycle.
	OnIdleExceeded(d Driver, ctx string) error
	// OnTaskPushed is called after pushed_task_cb's bookkeeping, mirroring
	// the point at which a context's push count may have just crossed
	// min_tasks.
	OnTaskPushed(d Driver, ctx string) error
	// OnTaskPoped is called after poped_task_cb's flops bookkeeping,
	// mirroring gflops_rate_policy's resize trigger.
	OnTaskPoped(d Driver, ctx string) error
}
