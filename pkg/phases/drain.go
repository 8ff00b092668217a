package phases

import (
	"context"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/types"
)

// Drain phases an eligible node out of the scheduler and waits for it
// to quiesce.
type Drain struct {
	Deps
}

// eventDrainEligible guards against draining for events that do not
// take the host down in place: TERMINATE actions replace the instance,
// and non-downtime maintenance does not interrupt workloads.
func eventDrainEligible(ev types.MaintenanceEvent) bool {
	if ev.InstanceAction == "TERMINATE" {
		return false
	}
	return ev.DisplayName == "" || ev.DisplayName == "DOWNTIME_HOST_MAINTENANCE"
}

// Execute requests DRAIN with the fault id as reason and polls until
// the node is observed quiesced. The request is sent even when the node
// is already quiesced (idempotent); in that case the poll returns on
// its first read.
func (p *Drain) Execute(ctx context.Context, job types.Job) error {
	logger := log.WithHost(job.Hostname)

	if !eventDrainEligible(job.Event) {
		p.Audit.Append("drain", "skipped", job.Hostname, audit.Fields{
			"reason":          "not_eligible_for_drain",
			"event_type":      job.Event.DisplayName,
			"instance_action": job.Event.InstanceAction,
		})
		logger.Info().Str("event_type", job.Event.DisplayName).Msg("drain not applicable for event type")
		return nil
	}

	p.Audit.Append("drain", "requested", job.Hostname, p.dryFields(audit.Fields{
		"reason":   job.FaultID,
		"event_id": job.EventID,
	}))
	if p.DryRun {
		return nil
	}

	if err := p.setDrain(ctx, job.Hostname, job.FaultID); err != nil {
		return types.NewPhaseError(types.KindTransientExternal, "drain request: %v", err)
	}

	deadline := p.now().Add(p.Cfg.DrainTimeout)
	for {
		if ctx.Err() != nil {
			return cancelErr(ctx)
		}
		state, err := p.nodeState(ctx, job.Hostname)
		if err != nil {
			logger.Warn().Err(err).Msg("node state read failed, retrying")
		} else if types.Quiesced(state) {
			p.Audit.Append("drain", "drained_empty", job.Hostname, audit.Fields{"state": state})
			logger.Info().Str("state", state).Msg("node quiesced")
			return nil
		}
		if p.now().After(deadline) {
			return types.NewPhaseError(types.KindDrainTimeout,
				"node %s not quiesced within %s", job.Hostname, p.Cfg.DrainTimeout)
		}
		if err := sleep(ctx, p.Cfg.DrainPoll); err != nil {
			return cancelErr(ctx)
		}
	}
}

func (p *Drain) setDrain(ctx context.Context, hostname, reason string) error {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	return p.Slurm.SetDrain(cctx, hostname, reason)
}

func (p *Drain) nodeState(ctx context.Context, hostname string) (string, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	return p.Slurm.NodeState(cctx, hostname)
}
