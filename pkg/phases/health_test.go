package phases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oci-hpc/felix/pkg/health"
)

func TestHealthPassAudited(t *testing.T) {
	sink := &recordingSink{}
	h := &Health{
		Deps:    Deps{Audit: sink, Cfg: fastConfig()},
		Checker: health.AlwaysPass{},
	}

	res := h.Execute(context.Background(), "GPU-1")
	assert.True(t, res.Passed)
	assert.Equal(t, []string{"health/pass"}, sink.actions())
}

func TestHealthFailAudited(t *testing.T) {
	sink := &recordingSink{}
	h := &Health{
		Deps: Deps{Audit: sink, Cfg: fastConfig()},
		Checker: health.CheckerFunc(func(ctx context.Context, hostname string) health.Result {
			return health.Result{Passed: false, Reason: "nvlink degraded"}
		}),
	}

	res := h.Execute(context.Background(), "GPU-1")
	assert.False(t, res.Passed)

	rec, ok := sink.find("health", "fail")
	require.True(t, ok)
	assert.Equal(t, "nvlink degraded", rec.Fields["reason"])
}
