package policy

import "github.com/rs/zerolog/log"

// AppDriven only resizes when the application itself requests it (the
// task_tag == -1 "immediate" path of sched_ctx_hypervisor_resize in the
// original; a deferred-by-task-tag request is applied later through the
// post-exec hook, outside this policy's triggers). It never acts on idle
// samples or push/pop bookkeeping on its own.
type AppDriven struct{}

func (AppDriven) Name() string { return "app_driven" }

func (AppDriven) OnIdleExceeded(d Driver, ctx string) error { return nil }

func (AppDriven) OnTaskPushed(d Driver, ctx string) error { return nil }

func (AppDriven) OnTaskPoped(d Driver, ctx string) error { return nil }

// RequestResize is the explicit entry point an application calls to force
// an immediate resize of ctx, mirroring sched_ctx_hypervisor_resize with
// task_tag == -1.
func (AppDriven) RequestResize(d Driver, ctx string) error {
	log.Debug().Str("ctx", ctx).Msg("application requested immediate resize")
	return d.Resize(ctx, true)
}
