package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oci-hpc/felix/pkg/audit"
	"github.com/oci-hpc/felix/pkg/cloud"
	"github.com/oci-hpc/felix/pkg/config"
	"github.com/oci-hpc/felix/pkg/discovery"
	"github.com/oci-hpc/felix/pkg/health"
	"github.com/oci-hpc/felix/pkg/inventory"
	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/metrics"
	"github.com/oci-hpc/felix/pkg/orchestrator"
	"github.com/oci-hpc/felix/pkg/phases"
	"github.com/oci-hpc/felix/pkg/slurm"
	"github.com/oci-hpc/felix/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// errPartialFailure signals exit code 2: one or more hosts ended FAILED.
var errPartialFailure = errors.New("one or more hosts failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartialFailure) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "felix",
	Short: "Felix - automated OCI + Slurm maintenance orchestrator",
	Long: `Felix orchestrates hardware maintenance for HPC compute nodes on OCI:
it discovers instance maintenance events, drains the affected Slurm
nodes, schedules the maintenance window, tracks it to completion,
verifies node health and returns healthy nodes to service.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Felix version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(catchupCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(phaseCmd("drain"))
	rootCmd.AddCommand(phaseCmd("maintenance"))
	rootCmd.AddCommand(phaseCmd("health"))
	rootCmd.AddCommand(phaseCmd("finalize"))
}

// app bundles the wired collaborators for one invocation.
type app struct {
	cfg      *config.Config
	compute  cloud.Compute
	wm       slurm.Client
	resolver inventory.Resolver
	sink     *audit.Logger
}

func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogFile != "",
		Output:     logOutput(cfg),
	})

	compute, err := cloud.NewOCIClient(cfg.TenancyOCID, cfg.Region)
	if err != nil {
		return nil, err
	}
	sink, err := audit.Open(cfg.EventsLogFile)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		compute:  compute,
		wm:       slurm.NewCLIClient(),
		resolver: inventory.NewCLIResolver(cfg.MgmtPython, cfg.MgmtManagePath),
		sink:     sink,
	}, nil
}

func logOutput(cfg *config.Config) *os.File {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, logging to stderr\n", cfg.LogFile, err)
		return os.Stderr
	}
	return f
}

func (a *app) orchestrator(dryRun bool) *orchestrator.Orchestrator {
	return &orchestrator.Orchestrator{
		Cfg:      a.cfg,
		Compute:  a.compute,
		Slurm:    a.wm,
		Resolver: a.resolver,
		Audit:    a.sink,
		Checker:  health.AlwaysPass{},
		DryRun:   dryRun,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runPass executes one orchestrator pass and maps the summary to the
// process exit code.
func runPass(mode orchestrator.Mode, host string, dryRun bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.sink.Close()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := a.orchestrator(dryRun).RunOnce(ctx, mode, host)
	if err != nil {
		return err
	}
	summary.Render(os.Stdout)
	if summary.ExitCode() != 0 {
		return errPartialFailure
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full maintenance workflow once",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runPass(orchestrator.ModeRun, "", dryRun)
	},
}

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Run the maintenance workflow periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.sink.Close()

		if a.cfg.MetricsAddr != "" {
			metrics.Register()
			go func() {
				if err := http.ListenAndServe(a.cfg.MetricsAddr, metrics.Handler()); err != nil {
					log.Errorf("metrics server", err)
				}
			}()
		}

		ctx, cancel := signalContext()
		defer cancel()

		err = a.orchestrator(dryRun).RunLoop(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Discover, drain and schedule only; skip health and finalize",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runPass(orchestrator.ModeStage, "", dryRun)
	},
}

var catchupCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Reconcile maintenance already past SCHEDULED; no drain or schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		host, _ := cmd.Flags().GetString("host")
		return runPass(orchestrator.ModeCatchup, host, dryRun)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, loopCmd, stageCmd, catchupCmd} {
		cmd.Flags().BoolP("dry-run", "n", false, "Do not make changes; record intended actions only")
	}
	catchupCmd.Flags().String("host", "", "Limit to a specific hostname")
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show discoverable maintenance events (read-only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetString("json")
		all, _ := cmd.Flags().GetBool("all")

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.sink.Close()

		ctx, cancel := signalContext()
		defer cancel()

		filter := discovery.RowFilter{IncludeCanceled: all}
		if !all {
			filter.ExcludeStates = []string{
				string(types.LifecycleStarted), string(types.LifecycleProcessing),
				string(types.LifecycleSucceeded), string(types.LifecycleCompleted),
				string(types.LifecycleFailed),
			}
		}
		rows, err := a.discoverer().Rows(ctx, a.wm, filter)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("json") {
			return writeJSON(jsonOut, rows)
		}
		renderRows(os.Stdout, rows)
		renderFaultSummary(os.Stdout, rows, a.cfg)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show all instance maintenance events",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetString("json")
		includeCanceled, _ := cmd.Flags().GetBool("include-canceled")
		exclude, _ := cmd.Flags().GetStringArray("exclude")

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.sink.Close()

		ctx, cancel := signalContext()
		defer cancel()

		rows, err := a.discoverer().Rows(ctx, a.wm, discovery.RowFilter{
			IncludeCanceled: includeCanceled,
			ExcludeStates:   exclude,
		})
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("json") {
			return writeJSON(jsonOut, rows)
		}
		renderRows(os.Stdout, rows)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{discoverCmd, reportCmd} {
		cmd.Flags().String("json", "", "Output JSON to stdout (no value) or to FILE")
		cmd.Flags().Lookup("json").NoOptDefVal = "-"
	}
	discoverCmd.Flags().Bool("all", false, "Include events in every lifecycle state")
	reportCmd.Flags().Bool("include-canceled", false, "Include CANCELED events")
	reportCmd.Flags().StringArrayP("exclude", "x", nil, "Exclude events in the given state (repeatable)")
}

func (a *app) discoverer() *discovery.Discoverer {
	return &discovery.Discoverer{
		Compute:  a.compute,
		Resolver: a.resolver,
		Audit:    a.sink,
		Cfg:      a.cfg,
	}
}

// phaseCmd builds the single-phase commands: drain, maintenance,
// health, finalize HOSTNAME. Discovery resolves the host's job first.
func phaseCmd(phase string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   phase + " HOSTNAME",
		Short: "Run the " + phase + " phase for one host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return runPhase(phase, args[0], dryRun)
		},
	}
	cmd.Flags().BoolP("dry-run", "n", false, "Do not make changes; record intended actions only")
	return cmd
}

func runPhase(phase, hostname string, dryRun bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.sink.Close()

	ctx, cancel := signalContext()
	defer cancel()

	job, err := a.findJob(ctx, hostname)
	if err != nil {
		return err
	}

	deps := phases.Deps{
		Compute: a.compute,
		Slurm:   a.wm,
		Audit:   a.sink,
		Cfg:     a.cfg,
		DryRun:  dryRun,
	}
	switch phase {
	case "drain":
		err = (&phases.Drain{Deps: deps}).Execute(ctx, job)
	case "maintenance":
		if _, err = (&phases.Schedule{Deps: deps}).Execute(ctx, job); err == nil {
			err = (&phases.Maintain{Deps: deps}).Execute(ctx, job)
		}
	case "health":
		res := (&phases.Health{Deps: deps, Checker: health.AlwaysPass{}}).Execute(ctx, hostname)
		if !res.Passed {
			err = types.NewPhaseError(types.KindHealthFailed, "%s", res.Reason)
		}
	case "finalize":
		err = (&phases.Finalize{Deps: deps}).Resume(ctx, job)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s complete for %s\n", phase, hostname)
	return nil
}

// findJob locates the host's job: pending events first, then events
// already past SCHEDULED.
func (a *app) findJob(ctx context.Context, hostname string) (types.Job, error) {
	disc := a.discoverer()
	for _, mode := range []discovery.Mode{discovery.ModeDefault, discovery.ModeCatchup} {
		jobs, err := disc.Discover(ctx, discovery.Options{Mode: mode, Host: hostname})
		if err != nil {
			return types.Job{}, err
		}
		if len(jobs) > 0 {
			return jobs[0], nil
		}
	}
	return types.Job{}, fmt.Errorf("no maintenance job found for hostname %q", hostname)
}

func writeJSON(target string, rows []discovery.Row) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if target == "" || target == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(target, append(data, '\n'), 0o644)
}

func renderRows(w *os.File, rows []discovery.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No maintenance events found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tHOST\tSLURM\tEVENT TYPE\tFAULTS\tIN STATE\tCREATED/STARTED\tPROCESSING")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\t%s\t%s\n",
			r.State, r.Hostname, r.SlurmState, r.EventType, r.FaultIDs,
			r.TimeInState, r.Created, r.TotalProcessing)
	}
	tw.Flush()
}

func renderFaultSummary(w *os.File, rows []discovery.Row, cfg *config.Config) {
	summary := discovery.FaultSummary(rows)
	if len(summary) == 0 {
		return
	}
	fmt.Fprintln(w, "\nDiscovered fault codes:")
	fids := make([]string, 0, len(summary))
	for fid := range summary {
		fids = append(fids, fid)
	}
	sort.Strings(fids)
	for _, fid := range fids {
		mark := ""
		if _, ok := cfg.ApprovedFaults[fid]; ok {
			mark = " [APPROVED]"
		}
		fmt.Fprintf(w, "  - %s%s: %d node(s) %v\n", fid, mark, len(summary[fid]), summary[fid])
	}
}
