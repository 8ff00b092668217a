package phases

import (
	"context"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/types"
)

// Maintain tracks a triggered maintenance event to a terminal state.
type Maintain struct {
	Deps
}

// Execute polls the event until terminal with doubling backoff. There
// is no overall timeout: hardware maintenance can run for a long time
// and the orchestrator's cancellation signal bounds the wait instead.
// A re-observed SCHEDULED state means the maintenance has not started
// yet and waiting continues.
func (p *Maintain) Execute(ctx context.Context, job types.Job) error {
	logger := log.WithHost(job.Hostname)

	if p.DryRun {
		// Nothing was scheduled, so there is nothing to track.
		return nil
	}

	interval := p.Cfg.MaintPoll
	for {
		if ctx.Err() != nil {
			return cancelErr(ctx)
		}

		cctx, cancel := p.callCtx(ctx)
		ev, err := p.Compute.GetMaintenanceEvent(cctx, job.EventID)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("event read failed, retrying")
		} else if ev.LifecycleState.Terminal() {
			if ev.LifecycleState.Succeeded() {
				p.Audit.Append("maintenance", "event_complete", job.Hostname, audit.Fields{
					"event_id": job.EventID,
					"state":    string(ev.LifecycleState),
				})
				logger.Info().Str("state", string(ev.LifecycleState)).Msg("maintenance complete")
				return nil
			}
			p.Audit.Append("maintenance", "event_failed", job.Hostname, audit.Fields{
				"event_id": job.EventID,
				"state":    string(ev.LifecycleState),
			})
			return types.NewPhaseError(types.KindMaintenanceFailed,
				"event %s ended %s", job.EventID, ev.LifecycleState)
		} else {
			logger.Debug().Str("state", string(ev.LifecycleState)).Dur("next_poll", interval).Msg("maintenance in progress")
		}

		if err := sleep(ctx, interval); err != nil {
			return cancelErr(ctx)
		}
		if interval *= 2; interval > p.Cfg.MaintPollMax {
			interval = p.Cfg.MaintPollMax
		}
	}
}
