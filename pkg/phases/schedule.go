package phases

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/cloud"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/metrics"
	"github.com/oci-hpc/felix/pkg/types"
)

// ScheduleResult distinguishes the schedule phase's non-error outcomes.
type ScheduleResult int

const (
	// ScheduleAccepted means the provider took the window and the work
	// request reached a terminal state.
	ScheduleAccepted ScheduleResult = iota
	// ScheduleAlreadyTransitioned means the event left SCHEDULED before
	// we acted; the pipeline advances straight to polling.
	ScheduleAlreadyTransitioned
	// ScheduleDry means dry-run elided the mutating call.
	ScheduleDry
)

// Schedule issues the maintenance trigger with a near-future window and
// the orchestrator's processed tag.
type Schedule struct {
	Deps
}

// Execute re-reads the event as a guard, requests the window, then
// waits for the provider's work request to reach a terminal state.
func (p *Schedule) Execute(ctx context.Context, job types.Job) (ScheduleResult, error) {
	logger := log.WithHost(job.Hostname)

	ev, err := p.getEvent(ctx, job.EventID)
	if err != nil {
		return 0, types.NewPhaseError(types.KindTransientExternal, "pre-schedule read: %v", err)
	}
	if ev.LifecycleState != types.LifecycleScheduled {
		logger.Info().Str("state", string(ev.LifecycleState)).Msg("event already transitioned, skipping schedule")
		p.Audit.Append("maintenance", "already_transitioned", job.Hostname, audit.Fields{
			"event_id": job.EventID,
			"state":    string(ev.LifecycleState),
		})
		return ScheduleAlreadyTransitioned, nil
	}

	window := p.now().UTC().Truncate(time.Second).Add(p.Cfg.ScheduleLead)
	tags := make(map[string]string, len(ev.FreeformTags)+1)
	for k, v := range ev.FreeformTags {
		tags[k] = v
	}
	tags[p.Cfg.ProcessedTag] = window.Format(time.RFC3339)

	p.Audit.Append("maintenance", "schedule_request", job.Hostname, p.dryFields(audit.Fields{
		"event_id":     job.EventID,
		"fault_id":     job.FaultID,
		"window_start": window.Format(time.RFC3339),
	}))
	if p.DryRun {
		return ScheduleDry, nil
	}

	var workRequestID string
	err = retry.Do(
		func() error {
			cctx, cancel := p.callCtx(ctx)
			defer cancel()
			var err error
			workRequestID, err = p.Compute.UpdateMaintenanceEvent(cctx, job.EventID, cloud.UpdateDetails{
				TimeWindowStart: &window,
				FreeformTags:    tags,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.Cfg.Retry.Attempts)),
		retry.Delay(p.Cfg.Retry.Base),
		retry.MaxDelay(p.Cfg.Retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, cancelErr(ctx)
		}
		return 0, types.NewPhaseError(types.KindScheduleFailed, "provider rejected schedule: %v", err)
	}

	p.Audit.Append("maintenance", "schedule_accepted", job.Hostname, audit.Fields{
		"event_id":     job.EventID,
		"work_request": workRequestID,
	})
	metrics.SchedulesIssued.Inc()
	logger.Info().Str("work_request", workRequestID).Time("window_start", window).Msg("maintenance scheduled")

	if err := p.waitWorkRequest(ctx, workRequestID); err != nil {
		return 0, err
	}
	return ScheduleAccepted, nil
}

// waitWorkRequest polls the work request until terminal. A FAILED or
// CANCELED work request means the schedule did not take effect.
func (p *Schedule) waitWorkRequest(ctx context.Context, workRequestID string) error {
	for {
		if ctx.Err() != nil {
			return cancelErr(ctx)
		}
		cctx, cancel := p.callCtx(ctx)
		status, err := p.Compute.GetWorkRequest(cctx, workRequestID)
		cancel()
		if err != nil {
			logger := log.WithComponent("schedule")
			logger.Warn().Err(err).Str("work_request", workRequestID).Msg("work request read failed, retrying")
		} else if status.Terminal() {
			if status != types.WorkRequestSucceeded {
				return types.NewPhaseError(types.KindScheduleFailed,
					"work request %s ended %s", workRequestID, status)
			}
			return nil
		}
		if err := sleep(ctx, p.Cfg.MaintPoll); err != nil {
			return cancelErr(ctx)
		}
	}
}

func (p *Schedule) getEvent(ctx context.Context, eventID string) (types.MaintenanceEvent, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	return p.Compute.GetMaintenanceEvent(cctx, eventID)
}
