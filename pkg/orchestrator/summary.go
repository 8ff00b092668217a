package orchestrator

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/oci-hpc/felix/pkg/types"
)

// Summary is the collected result of one pass.
type Summary struct {
	PassID   string
	Duration time.Duration
	Outcomes []types.Outcome
}

func (s *Summary) sort() {
	sort.Slice(s.Outcomes, func(i, j int) bool {
		return s.Outcomes[i].Hostname < s.Outcomes[j].Hostname
	})
}

// Count returns the number of hosts that ended in state.
func (s *Summary) Count(state types.HostState) int {
	n := 0
	for _, out := range s.Outcomes {
		if out.State == state {
			n++
		}
	}
	return n
}

// ExitCode maps the pass result to the process exit code: 0 clean,
// 2 partial failure.
func (s *Summary) ExitCode() int {
	if s.Count(types.StateFailed) > 0 {
		return 2
	}
	return 0
}

// Render writes the per-host outcome table.
func (s *Summary) Render(w io.Writer) {
	if len(s.Outcomes) == 0 {
		fmt.Fprintln(w, "No maintenance jobs processed.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATE\tKIND\tDETAIL")
	for _, out := range s.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", out.Hostname, out.State, out.Kind, out.Detail)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d done, %d skipped, %d failed (%s)\n",
		s.Count(types.StateDone), s.Count(types.StateSkipped), s.Count(types.StateFailed),
		s.Duration.Round(time.Millisecond))
}
