// Package cli wires the loopviz components into cobra commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopviz/loopviz/internal/config"
	"github.com/loopviz/loopviz/internal/logging"
)

// RootOptions holds global flags and the state PersistentPreRunE builds
// from them.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	LogFile    string

	// Lookup reads the launch environment. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)

	cfg     *config.Config
	level   *slog.LevelVar
	logger  *slog.Logger
	logSink io.Closer
}

// NewRootCommand creates the loopviz command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Lookup: os.LookupEnv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loopviz",
		Short: "Live visualizer for asynchronous resource lifecycles",
		Long: `loopviz records the lifecycle of asynchronous resources in an
instrumented process, relays the event stream over a websocket, and renders
the resulting trigger graph in a terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logSink != nil {
				opts.logSink.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides config")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides config")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "append logs to this file instead of stderr")

	cmd.AddCommand(NewRelayCommand(opts))
	cmd.AddCommand(NewTUICommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// setup loads the config, applies environment and flag overrides, and
// builds the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadOrDefault(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lookup := o.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envErr := cfg.ApplyEnv(lookup)
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}

	o.level = new(slog.LevelVar)
	if err := logging.SetLevel(o.level, cfg.Log.Level); err != nil {
		return err
	}

	var w io.Writer = cmd.ErrOrStderr()
	if o.LogFile != "" {
		f, err := os.OpenFile(o.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w, o.logSink = f, f
	}
	logger, err := logging.New(w, cfg.Log.Format, o.level)
	if err != nil {
		return err
	}

	if envErr != nil {
		logger.Warn("ignoring environment override", "err", envErr, "port", cfg.Recorder.Port)
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
