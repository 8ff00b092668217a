package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oci-hpc/felix/pkg/inventory"
	"github.com/oci-hpc/felix/pkg/types"
)

func TestFormatDuration(t *testing.T) {
	dur := func(d time.Duration) *time.Duration { return &d }

	assert.Equal(t, "-", FormatDuration(nil))
	assert.Equal(t, "42 s", FormatDuration(dur(42*time.Second)))
	assert.Equal(t, "5 m 03 s", FormatDuration(dur(5*time.Minute+3*time.Second)))
	assert.Equal(t, "2 h 07 m", FormatDuration(dur(2*time.Hour+7*time.Minute)))
	assert.Equal(t, "3 d 4 h", FormatDuration(dur(76*time.Hour)))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(nil))
	ts := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-26 09:30 UTC", FormatTime(&ts))
}

func TestRowsSortedAndFiltered(t *testing.T) {
	started := time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Hour)

	running := event("ev-1", "inst-a", "comp-1", types.LifecycleStarted, "HPCRDMA-0002-02")
	running.TimeStarted = &started
	pending := event("ev-2", "inst-b", "comp-1", types.LifecycleScheduled, "HPCGPU-0001-01")
	pending.TimeCreated = &started
	finishedEv := event("ev-3", "inst-c", "comp-1", types.LifecycleSucceeded)
	finishedEv.TimeStarted = &started
	finishedEv.TimeFinished = &finished
	canceled := event("ev-4", "inst-d", "comp-1", types.LifecycleCanceled)

	compute := &fakeCompute{
		compartments: []string{"comp-1"},
		events: map[string][]types.MaintenanceEvent{
			"comp-1": {running, pending, finishedEv, canceled},
		},
	}
	d := &Discoverer{
		Compute: compute,
		Resolver: inventory.NewStaticResolver(map[string]string{
			"inst-a": "GPU-1", "inst-b": "GPU-2", "inst-c": "GPU-3", "inst-d": "GPU-4",
		}),
		Audit: &recordingSink{},
		Cfg:   testConfig(),
	}

	rows, err := d.Rows(context.Background(), nil, RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3) // canceled dropped by default

	// Pending first, then in-flight, then terminal.
	assert.Equal(t, "SCHEDULED", rows[0].State)
	assert.Equal(t, "STARTED", rows[1].State)
	assert.Equal(t, "SUCCEEDED", rows[2].State)

	// Terminal rows freeze time-in-state at finished - started.
	assert.Equal(t, "2 h 00 m", rows[2].TimeInState)
	assert.Equal(t, "2 h 00 m", rows[2].TotalProcessing)
}

func TestRowsIncludeCanceled(t *testing.T) {
	compute := &fakeCompute{
		compartments: []string{"comp-1"},
		events: map[string][]types.MaintenanceEvent{
			"comp-1": {event("ev-1", "inst-a", "comp-1", types.LifecycleCanceled)},
		},
	}
	d := &Discoverer{
		Compute:  compute,
		Resolver: inventory.NewStaticResolver(map[string]string{"inst-a": "GPU-1"}),
		Audit:    &recordingSink{},
		Cfg:      testConfig(),
	}

	rows, err := d.Rows(context.Background(), nil, RowFilter{IncludeCanceled: true})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRowsExcludeStates(t *testing.T) {
	compute := &fakeCompute{
		compartments: []string{"comp-1"},
		events: map[string][]types.MaintenanceEvent{
			"comp-1": {
				event("ev-1", "inst-a", "comp-1", types.LifecycleScheduled),
				event("ev-2", "inst-b", "comp-1", types.LifecycleSucceeded),
			},
		},
	}
	d := &Discoverer{
		Compute: compute,
		Resolver: inventory.NewStaticResolver(map[string]string{
			"inst-a": "GPU-1", "inst-b": "GPU-2",
		}),
		Audit: &recordingSink{},
		Cfg:   testConfig(),
	}

	rows, err := d.Rows(context.Background(), nil, RowFilter{ExcludeStates: []string{"succeeded"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SCHEDULED", rows[0].State)
}

func TestRowsUnresolvedHostname(t *testing.T) {
	compute := &fakeCompute{
		compartments: []string{"comp-1"},
		events: map[string][]types.MaintenanceEvent{
			"comp-1": {event("ev-1", "inst-unknown", "comp-1", types.LifecycleScheduled)},
		},
	}
	d := &Discoverer{
		Compute:  compute,
		Resolver: inventory.NewStaticResolver(map[string]string{}),
		Audit:    &recordingSink{},
		Cfg:      testConfig(),
	}

	rows, err := d.Rows(context.Background(), nil, RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "(unknown)", rows[0].Hostname)
}

func TestFaultSummary(t *testing.T) {
	rows := []Row{
		{Hostname: "GPU-2", FaultIDs: []string{"HPCRDMA-0002-02"}},
		{Hostname: "GPU-1", FaultIDs: []string{"HPCRDMA-0002-02", "HPCGPU-0001-01"}},
		{Hostname: "GPU-1", FaultIDs: []string{"HPCRDMA-0002-02"}},
		{Hostname: "GPU-3"},
	}

	summary := FaultSummary(rows)
	assert.Equal(t, []string{"GPU-1", "GPU-2"}, summary["HPCRDMA-0002-02"])
	assert.Equal(t, []string{"GPU-1"}, summary["HPCGPU-0001-01"])
	assert.Equal(t, []string{"GPU-3"}, summary["(none)"])
}
