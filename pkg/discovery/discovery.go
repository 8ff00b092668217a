package discovery

import (
	"context"
	"errors"
	"sort"

	"github.com/avast/retry-go"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/cloud"
	"github.com/oci-hpc/felix/pkg/config"
	"github.com/oci-hpc/felix/pkg/inventory"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/metrics"
	"github.com/oci-hpc/felix/pkg/types"
)

// Mode selects which lifecycle states discovery actions.
type Mode int

const (
	// ModeDefault actions SCHEDULED events not yet tagged as managed.
	ModeDefault Mode = iota
	// ModeCatchup actions events already past SCHEDULED so the state
	// machine can be entered at IN_MAINTENANCE or HEALTH.
	ModeCatchup
)

// Discoverer builds the job set from the cloud, inventory and guardrail
// collaborators.
type Discoverer struct {
	Compute  cloud.Compute
	Resolver inventory.Resolver
	Audit    audit.Sink
	Cfg      *config.Config
}

// Options narrows a discovery run.
type Options struct {
	Mode Mode
	// Host, when set, keeps only jobs for that hostname.
	Host string
}

// Discover returns the pass's job list in deterministic order (sorted
// by hostname, one job per hostname). Per-compartment listing errors
// are recorded and skipped; they never abort the pass.
func (d *Discoverer) Discover(ctx context.Context, opts Options) ([]types.Job, error) {
	logger := log.WithComponent("discovery")

	compartments, err := d.Compute.ListCompartments(ctx)
	if err != nil {
		return nil, err
	}

	var events []types.MaintenanceEvent
	for _, comp := range compartments {
		sums, err := d.Compute.ListMaintenanceEvents(ctx, comp)
		if err != nil {
			logger.Warn().Err(err).Str("compartment", comp).Msg("listing failed, skipping compartment")
			d.Audit.Append("discover", "compartment_error", "", audit.Fields{
				"compartment": comp,
				"error":       err.Error(),
			})
			continue
		}
		for _, sum := range sums {
			if !d.wantState(sum.LifecycleState, opts.Mode) {
				continue
			}
			ev, err := d.Compute.GetMaintenanceEvent(ctx, sum.ID)
			if err != nil {
				logger.Warn().Err(err).Str("event_id", sum.ID).Msg("event read failed")
				continue
			}
			events = append(events, ev)
		}
	}

	// Deterministic processing order before host dedup.
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	var jobs []types.Job
	seen := make(map[string]bool)
	for _, ev := range events {
		job, ok := d.eventToJob(ctx, ev, opts)
		if !ok {
			continue
		}
		if seen[job.Hostname] {
			logger.Info().Str("host", job.Hostname).Str("event_id", ev.ID).Msg("hostname already queued this pass")
			d.Audit.Append("discover", "duplicate_host", job.Hostname, audit.Fields{"event_id": ev.ID})
			continue
		}
		seen[job.Hostname] = true
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Hostname < jobs[j].Hostname })

	metrics.JobsDiscovered.Add(float64(len(jobs)))
	logger.Info().Int("jobs", len(jobs)).Int("events", len(events)).Msg("discovery complete")
	return jobs, nil
}

func (d *Discoverer) wantState(state types.LifecycleState, mode Mode) bool {
	if mode == ModeCatchup {
		return state != types.LifecycleScheduled
	}
	return state == types.LifecycleScheduled
}

func (d *Discoverer) eventToJob(ctx context.Context, ev types.MaintenanceEvent, opts Options) (types.Job, bool) {
	logger := log.WithComponent("discovery")

	if opts.Mode == ModeDefault && ev.FreeformTags[d.Cfg.ProcessedTag] != "" {
		logger.Debug().Str("event_id", ev.ID).Msg("already tagged as managed, skipping")
		return types.Job{}, false
	}

	hostname, err := d.resolveHost(ctx, ev.InstanceID)
	if err != nil {
		logger.Warn().Err(err).Str("instance_id", ev.InstanceID).Msg("cannot resolve hostname")
		d.Audit.Append("discover", "unresolved", "", audit.Fields{
			"event_id":    ev.ID,
			"instance_id": ev.InstanceID,
		})
		return types.Job{}, false
	}

	if opts.Host != "" && hostname != opts.Host {
		return types.Job{}, false
	}

	if d.Cfg.HostExcluded(hostname) {
		logger.Info().Str("host", hostname).Msg("host excluded from automation")
		d.Audit.Append("discover", "excluded", hostname, audit.Fields{"event_id": ev.ID})
		return types.Job{}, false
	}

	fault := d.Cfg.ApprovedFault(ev.FaultIDs)
	if fault == "" {
		logger.Info().Str("host", hostname).Strs("fault_ids", ev.FaultIDs).Msg("no approved fault, skipping")
		return types.Job{}, false
	}

	return types.Job{
		EventID:       ev.ID,
		InstanceID:    ev.InstanceID,
		Hostname:      hostname,
		FaultID:       fault,
		CompartmentID: ev.CompartmentID,
		WindowStart:   ev.TimeWindowStart,
		Event:         ev,
	}, true
}

// resolveHost retries the inventory lookup per the collaborator retry
// contract. A definitive not-found is not retried.
func (d *Discoverer) resolveHost(ctx context.Context, instanceID string) (string, error) {
	var hostname string
	err := retry.Do(
		func() error {
			var err error
			hostname, err = d.Resolver.ResolveHost(ctx, instanceID)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.Cfg.Retry.Attempts)),
		retry.Delay(d.Cfg.Retry.Base),
		retry.MaxDelay(d.Cfg.Retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, inventory.ErrNotFound) }),
	)
	return hostname, err
}
