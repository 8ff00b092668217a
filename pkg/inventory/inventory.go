package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/oci-hpc/felix/pkg/log"
)

// ErrNotFound means the inventory has no hostname for the instance.
var ErrNotFound = errors.New("inventory: instance not found")

// Resolver maps an instance OCID to a hostname.
type Resolver interface {
	ResolveHost(ctx context.Context, instanceID string) (string, error)
}

// node is one entry of the management CLI's JSON node list.
type node struct {
	OCID     string `json:"ocid"`
	Hostname string `json:"hostname"`
}

// CLIResolver shells out to the management CLI and caches the full
// OCID -> hostname map for the lifetime of the resolver (one pass).
type CLIResolver struct {
	python string
	manage string

	mu     sync.Mutex
	cache  map[string]string
	loaded bool

	// run is swapped in tests.
	run func(ctx context.Context) ([]byte, error)
}

// NewCLIResolver builds a resolver invoking python + manage.py.
func NewCLIResolver(python, managePath string) *CLIResolver {
	r := &CLIResolver{python: python, manage: managePath}
	r.run = func(ctx context.Context) ([]byte, error) {
		return exec.CommandContext(ctx, r.python, r.manage, "nodes", "list", "--format", "json").Output()
	}
	return r
}

// NewStaticResolver serves lookups from a fixed map. Used by tests and
// the single-phase CLI commands.
func NewStaticResolver(hosts map[string]string) *CLIResolver {
	return &CLIResolver{cache: hosts, loaded: true}
}

// ResolveHost returns the hostname for instanceID or ErrNotFound.
func (r *CLIResolver) ResolveHost(ctx context.Context, instanceID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		if err := r.load(ctx); err != nil {
			return "", err
		}
	}
	host, ok := r.cache[instanceID]
	if !ok || host == "" {
		return "", ErrNotFound
	}
	return host, nil
}

func (r *CLIResolver) load(ctx context.Context) error {
	out, err := r.run(ctx)
	if err != nil {
		return fmt.Errorf("inventory: nodes list: %w", err)
	}
	var nodes []node
	if err := json.Unmarshal(out, &nodes); err != nil {
		return fmt.Errorf("inventory: parse nodes list: %w", err)
	}
	r.cache = make(map[string]string, len(nodes))
	for _, n := range nodes {
		if n.OCID != "" && n.Hostname != "" {
			r.cache[n.OCID] = n.Hostname
		}
	}
	r.loaded = true
	logger := log.WithComponent("inventory")
	logger.Info().Int("entries", len(r.cache)).Msg("host map loaded")
	return nil
}
