package phases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oci-hpc/felix/pkg/types"
)

func TestMaintainTracksToSuccess(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{
		types.LifecycleStarted,
		types.LifecycleProcessing,
		types.LifecycleSucceeded,
	}}
	sink := &recordingSink{}
	m := &Maintain{Deps{Compute: compute, Audit: sink, Cfg: fastConfig()}}

	err := m.Execute(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 3, compute.reads)
	assert.Equal(t, []string{"maintenance/event_complete"}, sink.actions())
}

func TestMaintainCompletedIsSuccess(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleCompleted}}
	m := &Maintain{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	assert.NoError(t, m.Execute(context.Background(), testJob()))
}

func TestMaintainReobservedScheduledKeepsWaiting(t *testing.T) {
	// A re-observed SCHEDULED just means the window has not opened yet.
	compute := &scriptedCompute{states: []types.LifecycleState{
		types.LifecycleScheduled,
		types.LifecycleScheduled,
		types.LifecycleStarted,
		types.LifecycleSucceeded,
	}}
	m := &Maintain{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	require.NoError(t, m.Execute(context.Background(), testJob()))
	assert.Equal(t, 4, compute.reads)
}

func TestMaintainEventFailed(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{
		types.LifecycleStarted,
		types.LifecycleFailed,
	}}
	sink := &recordingSink{}
	m := &Maintain{Deps{Compute: compute, Audit: sink, Cfg: fastConfig()}}

	err := m.Execute(context.Background(), testJob())
	var perr *types.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.KindMaintenanceFailed, perr.Kind)
	assert.Equal(t, []string{"maintenance/event_failed"}, sink.actions())
}

func TestMaintainEventCanceled(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleCanceled}}
	m := &Maintain{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	err := m.Execute(context.Background(), testJob())
	var perr *types.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.KindMaintenanceFailed, perr.Kind)
}

func TestMaintainDryRunDoesNothing(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleStarted}}
	m := &Maintain{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig(), DryRun: true}}

	require.NoError(t, m.Execute(context.Background(), testJob()))
	assert.Equal(t, 0, compute.reads)
}

func TestMaintainCancelled(t *testing.T) {
	compute := &scriptedCompute{states: []types.LifecycleState{types.LifecycleStarted}}
	m := &Maintain{Deps{Compute: compute, Audit: &recordingSink{}, Cfg: fastConfig()}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Execute(ctx, testJob())
	var perr *types.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.KindCancelled, perr.Kind)
}
