package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopviz/loopviz/internal/hooks"
	"github.com/loopviz/loopviz/internal/recorder"
	"github.com/loopviz/loopviz/internal/transport"
	"github.com/loopviz/loopviz/internal/workload"
)

const demoShutdownTimeout = 5 * time.Second

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Port   int
	Stacks bool
	Out    string
	Attach bool
	Rounds int
	Pause  time.Duration
	Unit   time.Duration
	Only   []string
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an instrumented sample workload",
		Long: `Run scripted timers, ticks, immediates, promises and I/O callbacks on an
instrumented runtime with the recorder attached to the relay.

The relay endpoint comes from recorder.host/recorder.port, which
LOOPVIZ_HOST and LOOPVIZ_PORT override. --out also writes every event as
JSON lines for later replay.

Scenarios: ` + fmt.Sprint(workload.Names()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "relay port, overrides recorder.port and LOOPVIZ_PORT")
	cmd.Flags().BoolVar(&opts.Stacks, "stacks", false, "capture creation stacks")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "also write events to this JSONL file")
	cmd.Flags().BoolVar(&opts.Attach, "attach", true, "connect to the relay")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "workload rounds, negative runs until interrupted")
	cmd.Flags().DurationVar(&opts.Pause, "pause", 500*time.Millisecond, "pause between rounds")
	cmd.Flags().DurationVar(&opts.Unit, "unit", 10*time.Millisecond, "base delay the scenarios scale from")
	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "run only these scenarios")

	return cmd
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	cfg := opts.cfg
	if cmd.Flags().Changed("port") {
		cfg.Recorder.Port = opts.Port
	}
	if opts.Stacks {
		cfg.Recorder.CaptureStacks = true
	}
	logger := opts.logger

	var sender recorder.Sender
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.Out, err)
		}
		defer f.Close()
		sender = recorder.NewWriterSender(f)
	}
	if sender == nil && !opts.Attach {
		return fmt.Errorf("nothing to record to: pass --out or leave --attach on")
	}

	rt := hooks.NewRuntime(logger)
	gen, err := workload.NewGenerator(rt, workload.Options{
		Rounds: opts.Rounds,
		Pause:  opts.Pause,
		Unit:   opts.Unit,
		Only:   opts.Only,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := recorder.New(recorder.Options{
		CaptureStacks: cfg.Recorder.CaptureStacks,
		Sender:        sender,
		Logger:        logger,
	})
	rec.Start(rt)
	if opts.Attach {
		rec.Attach(ctx, cfg.RecorderEndpoint(), transport.Options{
			QueueSize:     cfg.Recorder.SendQueue,
			ReconnectBase: cfg.Recorder.ReconnectBase,
			ReconnectMax:  cfg.Recorder.ReconnectMax,
			Logger:        logger,
		})
		logger.Info("recorder attached", "endpoint", cfg.RecorderEndpoint(), "stacks", cfg.Recorder.CaptureStacks)
	}

	runErr := gen.Run(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), demoShutdownTimeout)
	defer cancel()
	if err := rec.Shutdown(sctx); err != nil {
		logger.Warn("recorder shutdown incomplete", "error", err)
	}

	printStats(cmd.OutOrStdout(), rec.Stats())
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}

func printStats(w io.Writer, s recorder.Stats) {
	fmt.Fprintf(w, "emitted %d events, dropped %d, skipped %d\n", s.Emitted, s.Dropped, s.Skipped)
}
