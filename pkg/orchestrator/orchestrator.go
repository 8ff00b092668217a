package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/cloud"
	"github.com/oci-hpc/felix/pkg/config"
	"github.com/oci-hpc/felix/pkg/discovery"
	"github.com/oci-hpc/felix/pkg/health"
	"github.com/oci-hpc/felix/pkg/inventory"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/metrics"
	"github.com/oci-hpc/felix/pkg/phases"
	"github.com/oci-hpc/felix/pkg/slurm"
	"github.com/oci-hpc/felix/pkg/types"
)

// Mode selects how far the per-host pipeline runs.
type Mode int

const (
	// ModeRun executes the full pipeline.
	ModeRun Mode = iota
	// ModeStage stops after the schedule phase.
	ModeStage
	// ModeCatchup reconciles events already past SCHEDULED.
	ModeCatchup
)

// Orchestrator composes the collaborators and fans jobs out to a
// bounded worker pool. The job set guarantees each hostname appears at
// most once per pass, so workers never contend on a host.
type Orchestrator struct {
	Cfg      *config.Config
	Compute  cloud.Compute
	Slurm    slurm.Client
	Resolver inventory.Resolver
	Audit    audit.Sink
	Checker  health.Checker
	DryRun   bool

	// Now is the pass clock; defaults to time.Now.
	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) newMachine() *machine {
	deps := phases.Deps{
		Compute: o.Compute,
		Slurm:   o.Slurm,
		Audit:   o.Audit,
		Cfg:     o.Cfg,
		DryRun:  o.DryRun,
		Now:     o.Now,
	}
	checker := o.Checker
	if checker == nil {
		checker = health.AlwaysPass{}
	}
	return &machine{
		drain:    &phases.Drain{Deps: deps},
		schedule: &phases.Schedule{Deps: deps},
		maintain: &phases.Maintain{Deps: deps},
		health:   &phases.Health{Deps: deps, Checker: checker},
		finalize: &phases.Finalize{Deps: deps},
	}
}

// RunOnce executes a single pass. host, when non-empty, narrows the
// job set to one hostname (catchup and single-phase commands).
func (o *Orchestrator) RunOnce(ctx context.Context, mode Mode, host string) (*Summary, error) {
	logger := log.WithComponent("orchestrator")
	passID := uuid.NewString()
	start := o.now()

	o.Audit.Append("pass", "start", "", audit.Fields{
		"pass_id": passID,
		"mode":    modeName(mode),
		"dry":     o.DryRun,
	})

	disc := &discovery.Discoverer{
		Compute:  o.Compute,
		Resolver: o.Resolver,
		Audit:    o.Audit,
		Cfg:      o.Cfg,
	}
	dmode := discovery.ModeDefault
	if mode == ModeCatchup {
		dmode = discovery.ModeCatchup
	}
	jobs, err := disc.Discover(ctx, discovery.Options{Mode: dmode, Host: host})
	if err != nil {
		return nil, err
	}

	summary := o.dispatch(ctx, mode, jobs)
	summary.PassID = passID
	summary.Duration = o.now().Sub(start)

	metrics.PassDuration.Observe(summary.Duration.Seconds())
	for _, out := range summary.Outcomes {
		metrics.HostOutcomes.WithLabelValues(string(out.State)).Inc()
	}

	o.Audit.Append("pass", "end", "", audit.Fields{
		"pass_id": passID,
		"done":    summary.Count(types.StateDone),
		"skipped": summary.Count(types.StateSkipped),
		"failed":  summary.Count(types.StateFailed),
	})
	logger.Info().
		Str("pass_id", passID).
		Int("jobs", len(jobs)).
		Int("failed", summary.Count(types.StateFailed)).
		Dur("duration", summary.Duration).
		Msg("pass complete")
	return summary, nil
}

// dispatch runs the gated job set on MAX_WORKERS workers and collects
// per-host outcomes.
func (o *Orchestrator) dispatch(ctx context.Context, mode Mode, jobs []types.Job) *Summary {
	summary := &Summary{}
	if len(jobs) == 0 {
		return summary
	}

	capCtr := newCapCounter(o.Cfg.DailyScheduleCap)
	needsCap := mode != ModeCatchup

	queue := make(chan types.Job, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	results := make(chan types.Outcome, len(jobs))
	workers := o.Cfg.MaxWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := o.newMachine()
			for job := range queue {
				results <- o.process(ctx, m, mode, job, capCtr, needsCap)
			}
		}()
	}
	wg.Wait()
	close(results)

	for out := range results {
		summary.Outcomes = append(summary.Outcomes, out)
	}
	summary.sort()
	return summary
}

// process gates one job and runs the state machine for it.
func (o *Orchestrator) process(ctx context.Context, m *machine, mode Mode, job types.Job, capCtr *capCounter, needsCap bool) types.Outcome {
	switch decision := gate(o.Cfg, job, capCtr, needsCap); decision {
	case types.GateSkipExcluded:
		o.Audit.Append("skip", "excluded", job.Hostname, audit.Fields{"event_id": job.EventID})
	case types.GateSkipFault:
		o.Audit.Append("skip", "fault", job.Hostname, audit.Fields{
			"event_id": job.EventID,
			"fault_id": job.FaultID,
		})
	case types.GateSkipCap:
		o.Audit.Append("skip", "cap", job.Hostname, audit.Fields{
			"event_id": job.EventID,
			"cap":      o.Cfg.DailyScheduleCap,
		})
	default:
		if mode == ModeCatchup {
			return m.catchup(ctx, job)
		}
		return m.run(ctx, job, mode == ModeStage)
	}
	return types.Outcome{Hostname: job.Hostname, EventID: job.EventID, State: types.StateSkipped}
}

// RunLoop executes passes until the context is cancelled. The in-flight
// pass drains its workers before the loop exits.
func (o *Orchestrator) RunLoop(ctx context.Context) error {
	logger := log.WithComponent("orchestrator")
	logger.Info().Dur("interval", o.Cfg.LoopInterval).Msg("starting maintenance loop")

	for {
		if _, err := o.RunOnce(ctx, ModeRun, ""); err != nil {
			logger.Error().Err(err).Msg("pass failed")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("loop cancelled")
			return ctx.Err()
		case <-time.After(o.Cfg.LoopInterval):
		}
	}
}

func modeName(mode Mode) string {
	switch mode {
	case ModeStage:
		return "stage"
	case ModeCatchup:
		return "catchup"
	default:
		return "run"
	}
}
