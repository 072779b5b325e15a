package policy

import "github.com/rs/zerolog/log"

// Idle resizes a context as soon as one of its workers reports an idle
// sample past its configured threshold, mirroring the idle policy
// referenced by _load_hypervisor_policy's IDLE_POLICY tag. It ignores
// OnTaskPushed/OnTaskPoped entirely: idle time is its only signal.
type Idle struct{}

func (Idle) Name() string { return "idle" }

func (Idle) OnIdleExceeded(d Driver, ctx string) error {
	log.Debug().Str("ctx", ctx).Msg("idle policy triggering resize")
	return d.Resize(ctx, false)
}

func (Idle) OnTaskPushed(d Driver, ctx string) error { return nil }

func (Idle) OnTaskPoped(d Driver, ctx string) error { return nil }
