package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopviz/loopviz/internal/graph"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Format string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <file.jsonl>",
		Short: "Rebuild the resource graph from a recorded event stream",
		Long: `Read lifecycle events (one JSON object per line, either bare events or
relay messages) into a fresh model and print what it reconstructed.
Pass "-" to read standard input.

Examples:
  loopviz demo --attach=false --out run.jsonl
  loopviz replay run.jsonl
  loopviz replay --format json run.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format (text|json)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	if opts.Format != "text" && opts.Format != "json" {
		return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	m := graph.New(graph.Options{
		MaxLogEntries:    opts.cfg.Model.MaxLogEntries,
		MaxOpenIntervals: opts.cfg.Model.MaxOpenIntervals,
	})
	res, err := graph.Replay(r, m)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	opts.logger.Debug("replay finished", "lines", res.Lines, "malformed", res.Malformed, "model", m.String())

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		data, err := m.Snapshot().MarshalIndent()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	writeSummary(out, m, res)
	return nil
}

func writeSummary(w io.Writer, m *graph.Model, res graph.ReplayResult) {
	status, conn := m.Status()
	c := m.Counters()
	fmt.Fprintf(w, "lines %d  malformed %d  applied %d  orphans %d  ignored %d\n",
		res.Lines, res.Malformed, c.Applied, c.Orphans, c.Ignored)
	fmt.Fprintf(w, "session %d  status %s", m.Generation(), status)
	if conn != "" {
		fmt.Fprintf(w, "  connection %s", conn)
	}
	fmt.Fprintln(w)

	snap := m.Snapshot()
	if start, end := snap.Span(); !start.IsZero() {
		fmt.Fprintf(w, "span %s  roots %d  edges %d\n", end.Sub(start), len(snap.Roots), len(snap.Edges))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-20s %7s %7s %8s %8s %7s %12s %10s\n",
		"KIND", "TOTAL", "LIVE", "RUNNING", "RESOLVED", "RUNS", "RUN TIME", "AVG RUN")
	row := func(k graph.KindStat, name string) {
		fmt.Fprintf(w, "%-20s %7d %7d %8d %8d %7d %12s %10s\n",
			name, k.Total, k.Live, k.Running, k.Resolved, k.Runs, k.RunTime, k.AvgRun())
	}
	for _, k := range m.KindStats() {
		name := k.Kind
		if name == "" {
			name = "(unknown)"
		}
		row(k, name)
	}
	row(m.Totals(), "total")
}
