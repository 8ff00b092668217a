package slurm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oci-hpc/felix/pkg/log"
)

// Client is the workload-manager collaborator. NodeState is a read;
// the Set* operations are mutating.
type Client interface {
	NodeState(ctx context.Context, hostname string) (string, error)
	SetDrain(ctx context.Context, hostname, reason string) error
	SetResume(ctx context.Context, hostname string) error
	SetDown(ctx context.Context, hostname, reason string) error
}

// Runner executes a command and returns its combined stdout. Split out
// so tests can substitute a fake.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands on the local host.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("%s: %s", name, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CLIClient drives Slurm through scontrol.
type CLIClient struct {
	run Runner
}

// NewCLIClient returns a Client backed by the local scontrol binary.
func NewCLIClient() *CLIClient {
	return &CLIClient{run: ExecRunner}
}

// NewCLIClientWithRunner substitutes the command runner. Test hook.
func NewCLIClientWithRunner(run Runner) *CLIClient {
	return &CLIClient{run: run}
}

// NodeState returns the node's state token, lowercased with flags
// preserved (e.g. "idle+drain").
func (c *CLIClient) NodeState(ctx context.Context, hostname string) (string, error) {
	out, err := c.run(ctx, "scontrol", "show", "node", hostname)
	if err != nil {
		return "", fmt.Errorf("node state %s: %w", hostname, err)
	}
	return ParseStateToken(out), nil
}

// SetDrain requests DRAIN with the given reason. Idempotent: issuing it
// against an already-drained node only refreshes the reason.
func (c *CLIClient) SetDrain(ctx context.Context, hostname, reason string) error {
	_, err := c.run(ctx, "sudo", "scontrol", "update",
		"NodeName="+hostname, "State=DRAIN", fmt.Sprintf("Reason=%q", reason))
	if err != nil {
		return fmt.Errorf("set drain %s: %w", hostname, err)
	}
	logger := log.WithHost(hostname)
	logger.Info().Str("reason", reason).Msg("requested DRAIN")
	return nil
}

// SetResume returns the node to service and clears the reason.
func (c *CLIClient) SetResume(ctx context.Context, hostname string) error {
	_, err := c.run(ctx, "sudo", "scontrol", "update",
		"NodeName="+hostname, "State=RESUME")
	if err != nil {
		return fmt.Errorf("set resume %s: %w", hostname, err)
	}
	logger := log.WithHost(hostname)
	logger.Info().Msg("requested RESUME")
	return nil
}

// SetDown marks the node DOWN with the given reason.
func (c *CLIClient) SetDown(ctx context.Context, hostname, reason string) error {
	_, err := c.run(ctx, "sudo", "scontrol", "update",
		"NodeName="+hostname, "State=DOWN", fmt.Sprintf("Reason=%q", reason))
	if err != nil {
		return fmt.Errorf("set down %s: %w", hostname, err)
	}
	logger := log.WithHost(hostname)
	logger.Info().Str("reason", reason).Msg("requested DOWN")
	return nil
}

// ParseStateToken pulls the State= value out of scontrol show node
// output, stripping trailing punctuation but preserving flags like
// "+DRAIN". Returns "" when no State token is present.
func ParseStateToken(out string) string {
	for _, token := range strings.Fields(strings.ReplaceAll(out, "\n", " ")) {
		if v, ok := strings.CutPrefix(token, "State="); ok {
			return strings.ToLower(strings.TrimRight(strings.TrimSpace(v), ","))
		}
	}
	return ""
}
