package types

import (
	"fmt"
	"strings"
	"time"
)

// LifecycleState is the provider-reported state of a maintenance event.
type LifecycleState string

const (
	LifecycleScheduled  LifecycleState = "SCHEDULED"
	LifecycleStarted    LifecycleState = "STARTED"
	LifecycleProcessing LifecycleState = "PROCESSING"
	LifecycleSucceeded  LifecycleState = "SUCCEEDED"
	LifecycleCompleted  LifecycleState = "COMPLETED"
	LifecycleFailed     LifecycleState = "FAILED"
	LifecycleCanceled   LifecycleState = "CANCELED"
)

// Terminal reports whether the event can no longer make progress.
func (s LifecycleState) Terminal() bool {
	switch s {
	case LifecycleSucceeded, LifecycleCompleted, LifecycleFailed, LifecycleCanceled:
		return true
	}
	return false
}

// Succeeded reports terminal success. COMPLETED and SUCCEEDED are
// equivalent across provider regions.
func (s LifecycleState) Succeeded() bool {
	return s == LifecycleSucceeded || s == LifecycleCompleted
}

// WorkRequestStatus is the state of an asynchronous provider operation.
type WorkRequestStatus string

const (
	WorkRequestAccepted   WorkRequestStatus = "ACCEPTED"
	WorkRequestInProgress WorkRequestStatus = "IN_PROGRESS"
	WorkRequestSucceeded  WorkRequestStatus = "SUCCEEDED"
	WorkRequestFailed     WorkRequestStatus = "FAILED"
	WorkRequestCanceled   WorkRequestStatus = "CANCELED"
)

// Terminal reports whether the work request has finished.
func (s WorkRequestStatus) Terminal() bool {
	switch s {
	case WorkRequestSucceeded, WorkRequestFailed, WorkRequestCanceled:
		return true
	}
	return false
}

// MaintenanceEvent is the provider record felix consumes. It is never
// mutated directly; the orchestrator requests transitions and re-reads.
type MaintenanceEvent struct {
	ID              string
	InstanceID      string
	CompartmentID   string
	DisplayName     string
	InstanceAction  string
	LifecycleState  LifecycleState
	FaultIDs        []string
	TimeWindowStart *time.Time
	TimeCreated     *time.Time
	TimeStarted     *time.Time
	TimeFinished    *time.Time
	FreeformTags    map[string]string
}

// Job is the immutable unit of work one orchestrator worker owns
// end-to-end. FaultID is the single approved fault selected at discovery.
type Job struct {
	EventID       string
	InstanceID    string
	Hostname      string
	FaultID       string
	CompartmentID string
	WindowStart   *time.Time

	// Event is the record observed at discovery time. Phases re-read
	// the event before mutating; this copy serves guards and reporting.
	Event MaintenanceEvent
}

// Slurm state tokens preserve flags ("idle+drain"), so matching is
// substring-based on the lowercased token.

// Quiesced reports whether a node state token means the node is safe
// for maintenance (DRAIN or DRAINED, with or without flags).
func Quiesced(state string) bool {
	return strings.Contains(strings.ToLower(state), "drain")
}

// DrainedEmpty reports whether the node is both drained and empty of
// running jobs (IDLE+DRAIN).
func DrainedEmpty(state string) bool {
	s := strings.ToLower(state)
	return strings.Contains(s, "drain") && strings.Contains(s, "idle")
}

// HostState is a per-host state-machine position.
type HostState string

const (
	StatePending       HostState = "PENDING"
	StateDraining      HostState = "DRAINING"
	StateDrained       HostState = "DRAINED"
	StateScheduling    HostState = "SCHEDULING"
	StateInMaintenance HostState = "IN_MAINTENANCE"
	StateHealth        HostState = "HEALTH"
	StateFinalizing    HostState = "FINALIZING"
	StateDone          HostState = "DONE"
	StateSkipped       HostState = "SKIPPED"
	StateFailed        HostState = "FAILED"
)

// ErrorKind classifies failures across phase boundaries.
type ErrorKind string

const (
	KindConfig            ErrorKind = "ConfigError"
	KindTransientExternal ErrorKind = "TransientExternalError"
	KindDrainTimeout      ErrorKind = "DrainTimeout"
	KindScheduleFailed    ErrorKind = "ScheduleFailed"
	KindMaintenanceFailed ErrorKind = "MaintenanceFailed"
	KindHealthFailed      ErrorKind = "HealthFailed"
	KindCancelled         ErrorKind = "Cancelled"
	KindUnresolved        ErrorKind = "Unresolved"
)

// PhaseError carries a failure kind across the state-machine boundary.
type PhaseError struct {
	Kind   ErrorKind
	Detail string
}

func (e *PhaseError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewPhaseError builds a PhaseError with a formatted detail.
func NewPhaseError(kind ErrorKind, format string, args ...interface{}) *PhaseError {
	return &PhaseError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// GateDecision is the result of the eligibility gate.
type GateDecision string

const (
	GateProceed      GateDecision = "PROCEED"
	GateSkipCap      GateDecision = "SKIP-CAP"
	GateSkipExcluded GateDecision = "SKIP-EXCLUDED"
	GateSkipFault    GateDecision = "SKIP-FAULT"
)

// RetryPolicy describes bounded retries with exponential backoff.
// Delay for attempt n is Base*Factor^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Factor   int
	MaxDelay time.Duration
}

// DefaultRetryPolicy matches the collaborator retry contract: three
// attempts, one second base, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: time.Second, Factor: 2, MaxDelay: 30 * time.Second}
}

// Outcome is the terminal result of one host's pass.
type Outcome struct {
	Hostname string
	EventID  string
	State    HostState
	Kind     ErrorKind
	Detail   string
}
