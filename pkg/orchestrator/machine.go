package orchestrator

import (
	"context"
	"errors"

	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/phases"
	"github.com/oci-hpc/felix/pkg/types"
)

// machine walks one job through PENDING..DONE. Every transition is a
// total function: phase failures become the host's terminal outcome and
// never propagate to sibling hosts.
type machine struct {
	drain    *phases.Drain
	schedule *phases.Schedule
	maintain *phases.Maintain
	health   *phases.Health
	finalize *phases.Finalize
}

func failed(job types.Job, err error) types.Outcome {
	out := types.Outcome{
		Hostname: job.Hostname,
		EventID:  job.EventID,
		State:    types.StateFailed,
	}
	var perr *types.PhaseError
	if errors.As(err, &perr) {
		out.Kind, out.Detail = perr.Kind, perr.Detail
	} else if err != nil {
		out.Kind, out.Detail = types.KindTransientExternal, err.Error()
	}
	return out
}

func done(job types.Job) types.Outcome {
	return types.Outcome{Hostname: job.Hostname, EventID: job.EventID, State: types.StateDone}
}

// run executes the full or stage-truncated pipeline.
func (m *machine) run(ctx context.Context, job types.Job, stageOnly bool) types.Outcome {
	logger := log.WithHost(job.Hostname)

	// PENDING -> DRAINING -> DRAINED
	if err := m.drain.Execute(ctx, job); err != nil {
		return failed(job, err)
	}

	// DRAINED -> SCHEDULING
	if _, err := m.schedule.Execute(ctx, job); err != nil {
		return failed(job, err)
	}
	if stageOnly {
		logger.Info().Msg("stage mode, stopping after schedule")
		return done(job)
	}

	// SCHEDULING -> IN_MAINTENANCE -> HEALTH/FINALIZING
	return m.track(ctx, job)
}

// catchup enters the machine past drain/schedule based on the event's
// observed lifecycle state.
func (m *machine) catchup(ctx context.Context, job types.Job) types.Outcome {
	state := job.Event.LifecycleState
	switch {
	case state.Succeeded():
		return m.verify(ctx, job)
	case state.Terminal():
		if err := m.finalize.Hold(ctx, job, types.KindMaintenanceFailed); err != nil {
			return failed(job, err)
		}
		return failed(job, types.NewPhaseError(types.KindMaintenanceFailed, "event %s ended %s", job.EventID, state))
	default:
		return m.track(ctx, job)
	}
}

// track waits out the maintenance and runs the tail of the pipeline.
func (m *machine) track(ctx context.Context, job types.Job) types.Outcome {
	if err := m.maintain.Execute(ctx, job); err != nil {
		var perr *types.PhaseError
		if errors.As(err, &perr) && perr.Kind == types.KindMaintenanceFailed {
			// Fail path keeps the drain and skips health.
			if herr := m.finalize.Hold(ctx, job, types.KindMaintenanceFailed); herr != nil {
				return failed(job, herr)
			}
		}
		return failed(job, err)
	}
	return m.verify(ctx, job)
}

// verify runs HEALTH -> FINALIZING -> DONE.
func (m *machine) verify(ctx context.Context, job types.Job) types.Outcome {
	res := m.health.Execute(ctx, job.Hostname)
	if !res.Passed {
		if err := m.finalize.Hold(ctx, job, types.KindHealthFailed); err != nil {
			return failed(job, err)
		}
		return failed(job, types.NewPhaseError(types.KindHealthFailed, "%s", res.Reason))
	}
	if err := m.finalize.Resume(ctx, job); err != nil {
		return failed(job, err)
	}
	return done(job)
}
