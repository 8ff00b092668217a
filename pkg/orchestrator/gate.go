package orchestrator

import (
	"sync/atomic"

	"github.com/oci-hpc/felix/pkg/config"
	"github.com/oci-hpc/felix/pkg/types"
)

// capCounter enforces the daily schedule cap with an atomic
// increment-and-test. A worker that loses the race gets SKIP-CAP.
type capCounter struct {
	used  atomic.Int64
	limit int64
}

func newCapCounter(limit int) *capCounter {
	return &capCounter{limit: int64(limit)}
}

// tryAcquire claims one schedule slot. On failure the claim is
// released so the counter never overshoots the limit.
func (c *capCounter) tryAcquire() bool {
	if c.used.Add(1) > c.limit {
		c.used.Add(-1)
		return false
	}
	return true
}

// gate re-verifies a job's eligibility immediately before dispatch.
// Discovery already filtered on the same predicates; the gate is
// defence in depth plus the cap claim. needsCap is false for modes
// that never reach the schedule phase.
func gate(cfg *config.Config, job types.Job, capCtr *capCounter, needsCap bool) types.GateDecision {
	if cfg.HostExcluded(job.Hostname) {
		return types.GateSkipExcluded
	}
	if _, ok := cfg.ApprovedFaults[job.FaultID]; !ok {
		return types.GateSkipFault
	}
	if needsCap && !capCtr.tryAcquire() {
		return types.GateSkipCap
	}
	return types.GateProceed
}
