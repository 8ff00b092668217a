package phases

import (
	"context"
	"time"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/cloud"
	"github.com/oci-hpc/felix/pkg/config"
	"github.com/oci-hpc/felix/pkg/slurm"
	"github.com/oci-hpc/felix/pkg/types"
)

// Deps bundles the collaborators every driver needs. DryRun replaces
// mutating calls with audit records; reads proceed normally.
type Deps struct {
	Compute cloud.Compute
	Slurm   slurm.Client
	Audit   audit.Sink
	Cfg     *config.Config
	DryRun  bool

	// Now is the pass clock; defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// callCtx applies the per-call timeout to a collaborator invocation.
func (d *Deps) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.Cfg.CallTimeout)
}

// dryFields extends audit fields with the dry-run marker.
func (d *Deps) dryFields(fields audit.Fields) audit.Fields {
	if !d.DryRun {
		return fields
	}
	out := make(audit.Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["dry"] = true
	return out
}

// cancelErr converts a context error into the Cancelled phase error.
func cancelErr(ctx context.Context) *types.PhaseError {
	return types.NewPhaseError(types.KindCancelled, "%v", ctx.Err())
}

// sleep waits d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
