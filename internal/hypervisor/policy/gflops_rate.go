package policy

import "github.com/rs/zerolog/log"

// GflopsRate checks the popping context's flops-remaining percentage after
// each popped task and forces a resize once that context has fully drained,
// mirroring gflops_rate_policy's resize trigger in poped_task_cb (resize
// fires when flops_left_pct reaches 0 even if resize was not otherwise
// enabled for the sender). It does not compare the execution rates of
// different contexts.
type GflopsRate struct{}

func (GflopsRate) Name() string { return "gflops_rate" }

func (GflopsRate) OnIdleExceeded(d Driver, ctx string) error { return nil }

func (GflopsRate) OnTaskPushed(d Driver, ctx string) error { return nil }

func (GflopsRate) OnTaskPoped(d Driver, ctx string) error {
	if d.FlopsRemainingPct(ctx) > 0 {
		return nil
	}
	log.Debug().Str("ctx", ctx).Msg("gflops_rate policy triggering resize: context drained")
	return d.Resize(ctx, true)
}
