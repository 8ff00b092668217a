package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresTenancy(t *testing.T) {
	t.Setenv("OCI_TENANCY_OCID", "")
	t.Setenv("TENANCY_OCID", "")

	_, err := Load()
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "OCI_TENANCY_OCID", cerr.Option)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OCI_TENANCY_OCID", "ocid1.tenancy.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.DrainPoll)
	assert.Equal(t, 30*time.Minute, cfg.DrainTimeout)
	assert.Equal(t, 15*time.Minute, cfg.LoopInterval)
	assert.Equal(t, 5*time.Minute, cfg.ScheduleLead)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 10, cfg.DailyScheduleCap)
	assert.Equal(t, "felix", cfg.ProcessedTag)
	assert.Equal(t, "logs/events.jsonl", cfg.EventsLogFile)
	assert.Empty(t, cfg.ApprovedFaults)
	assert.Empty(t, cfg.ExcludedHosts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OCI_TENANCY_OCID", "ocid1.tenancy.test")
	t.Setenv("DRAIN_POLL_SEC", "5")
	t.Setenv("MAX_WORKERS", "2")
	t.Setenv("DAILY_SCHEDULE_CAP", "1")
	t.Setenv("PROCESSED_TAG", "maintenance_processed")
	t.Setenv("REGION", "us-phoenix-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.DrainPoll)
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, 1, cfg.DailyScheduleCap)
	assert.Equal(t, "maintenance_processed", cfg.ProcessedTag)
	assert.Equal(t, "us-phoenix-1", cfg.Region)
}

func TestApprovedFaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approved.json")
	require.NoError(t, os.WriteFile(path, []byte(`["HPCRDMA-0002-02", "HPCGPU-0001-01"]`), 0o644))

	t.Setenv("OCI_TENANCY_OCID", "ocid1.tenancy.test")
	t.Setenv("APPROVED_FAULT_CODES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.ApprovedFaults, 2)
	assert.Contains(t, cfg.ApprovedFaults, "HPCRDMA-0002-02")
}

func TestApprovedFaultsEnvFallback(t *testing.T) {
	t.Setenv("OCI_TENANCY_OCID", "ocid1.tenancy.test")
	t.Setenv("APPROVED_FAULT_CODES", "A-1, B-2 ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.ApprovedFaults, 2)
	assert.Contains(t, cfg.ApprovedFaults, "A-1")
	assert.Contains(t, cfg.ApprovedFaults, "B-2")
}

func TestMalformedGuardrailFileIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0o644))

	t.Setenv("OCI_TENANCY_OCID", "ocid1.tenancy.test")
	t.Setenv("EXCLUDED_HOSTS_FILE", path)

	_, err := Load()
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestMissingGuardrailFileIsEmptySet(t *testing.T) {
	t.Setenv("OCI_TENANCY_OCID", "ocid1.tenancy.test")
	t.Setenv("EXCLUDED_HOSTS_FILE", filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.ExcludedHosts)
}

func TestApprovedFaultSelection(t *testing.T) {
	cfg := &Config{ApprovedFaults: map[string]struct{}{
		"B-2": {},
		"A-1": {},
	}}

	// Lexicographically smallest approved fault wins.
	assert.Equal(t, "A-1", cfg.ApprovedFault([]string{"Z-9", "B-2", "A-1"}))
	assert.Equal(t, "B-2", cfg.ApprovedFault([]string{"B-2", "Z-9"}))
	assert.Equal(t, "", cfg.ApprovedFault([]string{"Z-9"}))
	assert.Equal(t, "", cfg.ApprovedFault(nil))

	// Exact, case-sensitive match only.
	assert.Equal(t, "", cfg.ApprovedFault([]string{"a-1"}))
}

func TestHostExcluded(t *testing.T) {
	cfg := &Config{ExcludedHosts: map[string]struct{}{"GPU-332": {}}}
	assert.True(t, cfg.HostExcluded("GPU-332"))
	assert.False(t, cfg.HostExcluded("GPU-333"))
}
