package phases

import (
	"context"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/health"
	"github.com/oci-hpc/felix/pkg/log"
)

// Health runs the pluggable post-maintenance predicate. The predicate
// is read-only, so it executes in dry-run mode too.
type Health struct {
	Deps
	Checker health.Checker
}

// Execute checks the host under the per-call timeout and audits the
// verdict.
func (p *Health) Execute(ctx context.Context, hostname string) health.Result {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()

	res := p.Checker.Check(cctx, hostname)
	logger := log.WithHost(hostname)
	if res.Passed {
		p.Audit.Append("health", "pass", hostname, nil)
		logger.Info().Msg("health check passed")
	} else {
		p.Audit.Append("health", "fail", hostname, audit.Fields{"reason": res.Reason})
		logger.Warn().Str("reason", res.Reason).Msg("health check failed")
	}
	return res
}
