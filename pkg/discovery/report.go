package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/slurm"
	"github.com/oci-hpc/felix/pkg/types"
)

// stateOrder groups rows by lifecycle for display: pending first, then
// in-flight, then terminal.
var stateOrder = map[types.LifecycleState]int{
	types.LifecycleScheduled:  1,
	types.LifecycleStarted:    2,
	types.LifecycleProcessing: 2,
	types.LifecycleSucceeded:  3,
	types.LifecycleCompleted:  3,
	types.LifecycleFailed:     5,
	types.LifecycleCanceled:   5,
}

// Row is one normalized maintenance event for the discover/report views.
type Row struct {
	State           string   `json:"state"`
	Hostname        string   `json:"hostname"`
	SlurmState      string   `json:"slurm_state,omitempty"`
	InstanceOCID    string   `json:"instance_ocid"`
	EventOCID       string   `json:"event_ocid"`
	EventType       string   `json:"event_type"`
	FaultIDs        []string `json:"fault_ids"`
	TimeInState     string   `json:"time_in_state"`
	Created         string   `json:"created"`
	TotalProcessing string   `json:"total_processing"`
}

// RowFilter selects which lifecycle states appear in the report.
type RowFilter struct {
	IncludeCanceled bool
	ExcludeStates   []string
}

func (f RowFilter) keep(state types.LifecycleState) bool {
	if !f.IncludeCanceled && state == types.LifecycleCanceled {
		return false
	}
	excluded := lo.Map(f.ExcludeStates, func(s string, _ int) string { return strings.ToUpper(s) })
	return !lo.Contains(excluded, string(state))
}

// Rows walks all compartments and builds report rows. The slurm client
// is optional; without it the SlurmState column stays empty. Read-only.
func (d *Discoverer) Rows(ctx context.Context, wm slurm.Client, filter RowFilter) ([]Row, error) {
	logger := log.WithComponent("report")

	compartments, err := d.Compute.ListCompartments(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var rows []Row
	for _, comp := range compartments {
		sums, err := d.Compute.ListMaintenanceEvents(ctx, comp)
		if err != nil {
			logger.Warn().Err(err).Str("compartment", comp).Msg("listing failed, skipping compartment")
			continue
		}
		for _, sum := range sums {
			if !filter.keep(sum.LifecycleState) {
				continue
			}
			ev, err := d.Compute.GetMaintenanceEvent(ctx, sum.ID)
			if err != nil {
				logger.Warn().Err(err).Str("event_id", sum.ID).Msg("event read failed")
				continue
			}
			rows = append(rows, d.buildRow(ctx, ev, wm, now))
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		oi := stateOrder[types.LifecycleState(rows[i].State)]
		oj := stateOrder[types.LifecycleState(rows[j].State)]
		if oi != oj {
			return oi < oj
		}
		return rows[i].Hostname < rows[j].Hostname
	})
	return rows, nil
}

func (d *Discoverer) buildRow(ctx context.Context, ev types.MaintenanceEvent, wm slurm.Client, now time.Time) Row {
	hostname := "(unknown)"
	if h, err := d.Resolver.ResolveHost(ctx, ev.InstanceID); err == nil {
		hostname = h
	}

	slurmState := ""
	if wm != nil && hostname != "(unknown)" {
		if s, err := wm.NodeState(ctx, hostname); err == nil {
			slurmState = s
		}
	}

	return Row{
		State:           string(ev.LifecycleState),
		Hostname:        hostname,
		SlurmState:      slurmState,
		InstanceOCID:    ev.InstanceID,
		EventOCID:       ev.ID,
		EventType:       ev.DisplayName,
		FaultIDs:        ev.FaultIDs,
		TimeInState:     FormatDuration(timeInState(ev, now)),
		Created:         FormatTime(createdOrStarted(ev)),
		TotalProcessing: FormatDuration(secondsBetween(ev.TimeStarted, ev.TimeFinished)),
	}
}

// timeInState freezes for terminal states (finished - started) and runs
// against the wall clock otherwise.
func timeInState(ev types.MaintenanceEvent, now time.Time) *time.Duration {
	switch {
	case ev.LifecycleState == types.LifecycleScheduled:
		return sinceOrNil(ev.TimeCreated, now)
	case ev.LifecycleState == types.LifecycleStarted || ev.LifecycleState == types.LifecycleProcessing:
		return sinceOrNil(ev.TimeStarted, now)
	case ev.LifecycleState.Terminal():
		return secondsBetween(ev.TimeStarted, ev.TimeFinished)
	default:
		return sinceOrNil(ev.TimeCreated, now)
	}
}

// createdOrStarted picks the Created column source: creation time while
// SCHEDULED, start time (falling back to creation) afterwards.
func createdOrStarted(ev types.MaintenanceEvent) *time.Time {
	if ev.LifecycleState == types.LifecycleScheduled {
		return ev.TimeCreated
	}
	if ev.TimeStarted != nil {
		return ev.TimeStarted
	}
	return ev.TimeCreated
}

func sinceOrNil(t *time.Time, now time.Time) *time.Duration {
	if t == nil {
		return nil
	}
	d := now.Sub(*t)
	if d < 0 {
		d = 0
	}
	return &d
}

func secondsBetween(start, end *time.Time) *time.Duration {
	if start == nil || end == nil {
		return nil
	}
	d := end.Sub(*start)
	if d < 0 {
		d = 0
	}
	return &d
}

// FormatDuration renders durations for the report table: days and hours
// past 24h, otherwise hours/minutes/seconds.
func FormatDuration(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	sec := int(d.Round(time.Second).Seconds())
	if sec >= 86400 {
		return fmt.Sprintf("%d d %d h", sec/86400, (sec%86400)/3600)
	}
	h, m, s := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d h %02d m", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%d m %02d s", m, s)
	}
	return fmt.Sprintf("%d s", s)
}

// FormatTime renders timestamps in UTC for the report table.
func FormatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// FaultSummary maps each discovered fault id to the hostnames reporting
// it. Events without faults appear under "(none)".
func FaultSummary(rows []Row) map[string][]string {
	summary := make(map[string][]string)
	for _, row := range rows {
		ids := row.FaultIDs
		if len(ids) == 0 {
			ids = []string{"(none)"}
		}
		for _, fid := range ids {
			summary[fid] = append(summary[fid], row.Hostname)
		}
	}
	for fid, hosts := range summary {
		summary[fid] = lo.Uniq(hosts)
		sort.Strings(summary[fid])
	}
	return summary
}
