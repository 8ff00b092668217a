package phases

import (
	"context"
	"fmt"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/types"
)

// Finalize translates the pass outcome into a workload-manager
// transition: resume on success, hold drained with an explanatory
// reason otherwise.
type Finalize struct {
	Deps
}

// Resume returns the node to service. A pre-read guards idempotence:
// if the node is no longer quiesced a previous pass already resumed it
// and no mutating call is made.
func (p *Finalize) Resume(ctx context.Context, job types.Job) error {
	logger := log.WithHost(job.Hostname)

	state, err := p.nodeState(ctx, job.Hostname)
	if err != nil {
		return types.NewPhaseError(types.KindTransientExternal, "finalize pre-read: %v", err)
	}
	if !types.Quiesced(state) {
		logger.Info().Str("state", state).Msg("node already in service, nothing to finalize")
		p.Audit.Append("finalize", "resumed", job.Hostname, audit.Fields{"noop": true, "state": state})
		return nil
	}

	p.Audit.Append("finalize", "resumed", job.Hostname, p.dryFields(audit.Fields{
		"event_id": job.EventID,
	}))
	if p.DryRun {
		return nil
	}

	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	if err := p.Slurm.SetResume(cctx, job.Hostname); err != nil {
		return types.NewPhaseError(types.KindTransientExternal, "resume: %v", err)
	}
	logger.Info().Msg("node returned to service")
	return nil
}

// Hold keeps the node drained after a failed maintenance or health
// check, refreshing the reason so operators see why, and records a
// ticket hook in the audit log.
func (p *Finalize) Hold(ctx context.Context, job types.Job, kind types.ErrorKind) error {
	reason := fmt.Sprintf("%s:%s", job.FaultID, kind)

	p.Audit.Append("finalize", "held", job.Hostname, p.dryFields(audit.Fields{
		"event_id": job.EventID,
		"reason":   reason,
	}))
	p.Audit.Append("ticket", "recorded", job.Hostname, audit.Fields{
		"event_id": job.EventID,
		"reason":   reason,
	})
	if p.DryRun {
		return nil
	}

	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	// Drain is idempotent; re-issuing it only refreshes the reason.
	if err := p.Slurm.SetDrain(cctx, job.Hostname, reason); err != nil {
		return types.NewPhaseError(types.KindTransientExternal, "hold: %v", err)
	}
	logger := log.WithHost(job.Hostname)
	logger.Warn().Str("reason", reason).Msg("node held out of service")
	return nil
}

func (p *Finalize) nodeState(ctx context.Context, hostname string) (string, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	return p.Slurm.NodeState(cctx, hostname)
}
