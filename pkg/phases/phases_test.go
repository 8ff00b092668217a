package phases

import (
	"context"
	"sync"
	"time"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/cloud"
	"github.com/oci-hpc/felix/pkg/config"
	"github.com/oci-hpc/felix/pkg/types"
)

type auditRecord struct {
	Phase  string
	Action string
	Host   string
	Fields audit.Fields
}

type recordingSink struct {
	mu      sync.Mutex
	records []auditRecord
}

func (s *recordingSink) Append(phase, action, host string, fields audit.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, auditRecord{Phase: phase, Action: action, Host: host, Fields: fields})
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Phase + "/" + r.Action
	}
	return out
}

func (s *recordingSink) find(phase, action string) (auditRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Phase == phase && r.Action == action {
			return r, true
		}
	}
	return auditRecord{}, false
}

// scriptedCompute serves GetMaintenanceEvent from a fixed sequence of
// lifecycle states, repeating the last one once exhausted.
type scriptedCompute struct {
	mu         sync.Mutex
	states     []types.LifecycleState
	tags       map[string]string
	reads      int
	updateErr  error
	updates    []cloud.UpdateDetails
	wrStatuses []types.WorkRequestStatus
	wrReads    int
}

func (f *scriptedCompute) ListCompartments(ctx context.Context) ([]string, error) { return nil, nil }

func (f *scriptedCompute) ListMaintenanceEvents(ctx context.Context, compartmentID string) ([]types.MaintenanceEvent, error) {
	return nil, nil
}

func (f *scriptedCompute) GetMaintenanceEvent(ctx context.Context, eventID string) (types.MaintenanceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.reads
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.reads++
	return types.MaintenanceEvent{
		ID:             eventID,
		LifecycleState: f.states[i],
		DisplayName:    "DOWNTIME_HOST_MAINTENANCE",
		InstanceAction: "REBOOT",
		FreeformTags:   f.tags,
	}, nil
}

func (f *scriptedCompute) UpdateMaintenanceEvent(ctx context.Context, eventID string, details cloud.UpdateDetails) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return "", f.updateErr
	}
	f.updates = append(f.updates, details)
	return "wr-1", nil
}

func (f *scriptedCompute) GetWorkRequest(ctx context.Context, workRequestID string) (types.WorkRequestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.wrReads
	if i >= len(f.wrStatuses) {
		i = len(f.wrStatuses) - 1
	}
	f.wrReads++
	if len(f.wrStatuses) == 0 {
		return types.WorkRequestSucceeded, nil
	}
	return f.wrStatuses[i], nil
}

// scriptedSlurm serves NodeState from a sequence and records the
// mutating transitions it receives.
type scriptedSlurm struct {
	mu       sync.Mutex
	states   []string
	reads    int
	drains   []string // "host reason"
	resumes  []string
	downs    []string
	stateErr error
}

func (f *scriptedSlurm) NodeState(ctx context.Context, hostname string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return "", f.stateErr
	}
	i := f.reads
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.reads++
	return f.states[i], nil
}

func (f *scriptedSlurm) SetDrain(ctx context.Context, hostname, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains = append(f.drains, hostname+" "+reason)
	return nil
}

func (f *scriptedSlurm) SetResume(ctx context.Context, hostname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, hostname)
	return nil
}

func (f *scriptedSlurm) SetDown(ctx context.Context, hostname, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downs = append(f.downs, hostname+" "+reason)
	return nil
}

func fastConfig() *config.Config {
	return &config.Config{
		ProcessedTag: "felix",
		DrainPoll:    time.Millisecond,
		DrainTimeout: 50 * time.Millisecond,
		MaintPoll:    time.Millisecond,
		MaintPollMax: 4 * time.Millisecond,
		ScheduleLead: 5 * time.Minute,
		CallTimeout:  time.Second,
		Retry:        types.RetryPolicy{Attempts: 2, Base: time.Millisecond, Factor: 2, MaxDelay: time.Millisecond},
	}
}

func testJob() types.Job {
	return types.Job{
		EventID:    "ev-1",
		InstanceID: "inst-a",
		Hostname:   "GPU-1",
		FaultID:    "HPCRDMA-0002-02",
		Event: types.MaintenanceEvent{
			ID:             "ev-1",
			InstanceID:     "inst-a",
			DisplayName:    "DOWNTIME_HOST_MAINTENANCE",
			InstanceAction: "REBOOT",
			LifecycleState: types.LifecycleScheduled,
		},
	}
}
