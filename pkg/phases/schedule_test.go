package phases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oci-hpc/felix/pkg/types"
)

func TestScheduleSetsWindowAndTag(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleScheduled}}
	sink := &recordingSink{}
	frozen := time.Date(2026, 8, 26, 12, 0, 0, 123_000_000, time.UTC)
	s := &Schedule{Deps{
		Compute: compute,
		Audit:   sink,
		Cfg:     fastConfig(),
		Now:     func() time.Time { return frozen },
	}}

	res, err := s.Execute(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, ScheduleAccepted, res)

	require.Len(t, compute.updates, 1)
	upd := compute.updates[0]
	want := time.Date(2026, 8, 26, 12, 5, 0, 0, time.UTC) // now truncated + lead
	require.NotNil(t, upd.TimeWindowStart)
	assert.True(t, upd.TimeWindowStart.Equal(want))
	assert.Equal(t, want.Format(time.RFC3339), upd.FreeformTags["felix"])

	assert.Equal(t, []string{"maintenance/schedule_request", "maintenance/schedule_accepted"}, sink.actions())
}

func TestScheduleAlreadyTransitioned(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleStarted}}
	sink := &recordingSink{}
	s := &Schedule{Deps{Compute: compute, Audit: sink, Cfg: fastConfig()}}

	res, err := s.Execute(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, ScheduleAlreadyTransitioned, res)
	assert.Empty(t, compute.updates)
	assert.Equal(t, []string{"maintenance/already_transitioned"}, sink.actions())
}

func TestScheduleDryRun(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleScheduled}}
	sink := &recordingSink{}
	s := &Schedule{Deps{Compute: compute, Audit: sink, Cfg: fastConfig(), DryRun: true}}

	res, err := s.Execute(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, ScheduleDry, res)
	assert.Empty(t, compute.updates)

	rec, ok := sink.find("maintenance", "schedule_request")
	require.True(t, ok)
	assert.Equal(t, true, rec.Fields["dry"])
	_, accepted := sink.find("maintenance", "schedule_accepted")
	assert.False(t, accepted)
}

func TestSchedulePreservesExistingTags(t *testing.T) {
	compute := &scriptedCompute{
		states: []types.LifecycleState{types.LifecycleScheduled},
		tags:   map[string]string{"team": "hpc"},
	}
	s := &Schedule{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	_, err := s.Execute(context.Background(), testJob())
	require.NoError(t, err)
	require.Len(t, compute.updates, 1)
	assert.Equal(t, "hpc", compute.updates[0].FreeformTags["team"])
	assert.Contains(t, compute.updates[0].FreeformTags, "felix")
}

func TestScheduleUpdateFailure(t *testing.T) {
	compute := &scriptedCompute{
		states:    []types.LifecycleState{types.LifecycleScheduled},
		updateErr: errors.New("409 Conflict"),
	}
	s := &Schedule{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	_, err := s.Execute(context.Background(), testJob())
	var perr *types.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.KindScheduleFailed, perr.Kind)
}

func TestScheduleWorkRequestFailed(t *testing.T) {
	compute := &scriptedCompute{
		states:     []types.LifecycleState{types.LifecycleScheduled},
		wrStatuses: []types.WorkRequestStatus{types.WorkRequestInProgress, types.WorkRequestFailed},
	}
	s := &Schedule{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	_, err := s.Execute(context.Background(), testJob())
	var perr *types.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.KindScheduleFailed, perr.Kind)
	assert.Equal(t, 2, compute.wrReads)
}
