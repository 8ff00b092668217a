package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oci-hpc/felix/pkg/types"
)

// Defaults for tunables not present in the environment.
const (
	DefaultDrainPollSec     = 30
	DefaultDrainTimeoutSec  = 1800
	DefaultMaintPollSec     = 30
	DefaultMaintPollMaxSec  = 300
	DefaultLoopIntervalSec  = 900
	DefaultScheduleLeadSec  = 300
	DefaultCallTimeoutSec   = 30
	DefaultDailyScheduleCap = 10
	DefaultMaxWorkers       = 8
	DefaultProcessedTag     = "felix"
	DefaultRegion           = "us-ashburn-1"
	DefaultEventsLogFile    = "logs/events.jsonl"
)

// Config is the immutable per-pass configuration record.
type Config struct {
	TenancyOCID string
	Region      string

	ProcessedTag string

	DrainPoll    time.Duration
	DrainTimeout time.Duration
	MaintPoll    time.Duration
	MaintPollMax time.Duration
	LoopInterval time.Duration
	ScheduleLead time.Duration
	CallTimeout  time.Duration

	MaxWorkers       int
	DailyScheduleCap int

	ApprovedFaults map[string]struct{}
	ExcludedHosts  map[string]struct{}

	EventsLogFile string
	LogLevel      string
	LogFile       string
	MetricsAddr   string

	// External management CLI used for instance -> hostname resolution.
	MgmtPython     string
	MgmtManagePath string

	Retry types.RetryPolicy
}

// ConfigError marks a missing or malformed required option. It is the
// only error class that aborts a pass.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Option, e.Reason)
}

// Load builds a Config from the process environment and the guardrail
// files it references.
func Load() (*Config, error) {
	tenancy := getenv("OCI_TENANCY_OCID", os.Getenv("TENANCY_OCID"))
	if tenancy == "" {
		return nil, &ConfigError{Option: "OCI_TENANCY_OCID", Reason: "required"}
	}

	cfg := &Config{
		TenancyOCID:      tenancy,
		Region:           getenv("REGION", DefaultRegion),
		ProcessedTag:     getenv("PROCESSED_TAG", DefaultProcessedTag),
		DrainPoll:        secondsEnv("DRAIN_POLL_SEC", DefaultDrainPollSec),
		DrainTimeout:     secondsEnv("DRAIN_TIMEOUT_SEC", DefaultDrainTimeoutSec),
		MaintPoll:        secondsEnv("MAINT_POLL_SEC", DefaultMaintPollSec),
		MaintPollMax:     time.Duration(DefaultMaintPollMaxSec) * time.Second,
		LoopInterval:     secondsEnv("LOOP_INTERVAL_SEC", DefaultLoopIntervalSec),
		ScheduleLead:     secondsEnv("SCHEDULE_LEAD_SEC", DefaultScheduleLeadSec),
		CallTimeout:      secondsEnv("CALL_TIMEOUT_SEC", DefaultCallTimeoutSec),
		MaxWorkers:       intEnv("MAX_WORKERS", DefaultMaxWorkers),
		DailyScheduleCap: intEnv("DAILY_SCHEDULE_CAP", DefaultDailyScheduleCap),
		EventsLogFile:    getenv("EVENTS_LOG_FILE", DefaultEventsLogFile),
		LogLevel:         strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFile:          os.Getenv("LOG_FILE"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		MgmtPython:       getenv("MGMT_PYTHON", ".venv/bin/python3"),
		MgmtManagePath:   getenv("MGMT_MANAGE_PATH", "/config/mgmt/manage.py"),
		Retry:            types.DefaultRetryPolicy(),
	}

	faults, err := loadApprovedFaults()
	if err != nil {
		return nil, err
	}
	cfg.ApprovedFaults = faults

	excluded, err := loadStringSetFile(os.Getenv("EXCLUDED_HOSTS_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.ExcludedHosts = excluded

	if cfg.MaxWorkers < 1 {
		return nil, &ConfigError{Option: "MAX_WORKERS", Reason: "must be >= 1"}
	}
	if cfg.DailyScheduleCap < 0 {
		return nil, &ConfigError{Option: "DAILY_SCHEDULE_CAP", Reason: "must be >= 0"}
	}
	return cfg, nil
}

// loadApprovedFaults reads APPROVED_FAULT_CODES_FILE (a JSON array),
// falling back to the comma-separated APPROVED_FAULT_CODES variable.
// Matching downstream is exact and case-sensitive.
func loadApprovedFaults() (map[string]struct{}, error) {
	set, err := loadStringSetFile(os.Getenv("APPROVED_FAULT_CODES_FILE"))
	if err != nil {
		return nil, err
	}
	if len(set) > 0 {
		return set, nil
	}
	set = make(map[string]struct{})
	for _, c := range strings.Split(os.Getenv("APPROVED_FAULT_CODES"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set, nil
}

// loadStringSetFile parses a JSON array of strings into a set. A missing
// path yields an empty set; an unreadable or malformed file is a
// ConfigError so guardrails never silently vanish.
func loadStringSetFile(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, &ConfigError{Option: path, Reason: err.Error()}
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &ConfigError{Option: path, Reason: fmt.Sprintf("not a JSON array of strings: %v", err)}
	}
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			set[it] = struct{}{}
		}
	}
	return set, nil
}

// HostExcluded reports whether hostname is barred from automation.
func (c *Config) HostExcluded(hostname string) bool {
	_, ok := c.ExcludedHosts[hostname]
	return ok
}

// ApprovedFault returns the lexicographically smallest approved fault
// among faultIDs, or "" when none match. Exact, case-sensitive match.
func (c *Config) ApprovedFault(faultIDs []string) string {
	best := ""
	for _, fid := range faultIDs {
		if _, ok := c.ApprovedFaults[fid]; !ok {
			continue
		}
		if best == "" || fid < best {
			best = fid
		}
	}
	return best
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func secondsEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * time.Second
}
