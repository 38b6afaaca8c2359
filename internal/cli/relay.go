package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loopviz/loopviz/internal/config"
	"github.com/loopviz/loopviz/internal/logging"
	"github.com/loopviz/loopviz/internal/relay"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Port int
	Host string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the relay between a recorder and terminal surfaces",
		Long: `Listen for one recorder link on "/" (or "/ingest") and any number of
surfaces on "/surface", forwarding every lifecycle event to the surfaces.

The config file is watched; log.level and relay.allowed_origins changes
apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port, overrides relay.port")
	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host, overrides relay.host")

	return cmd
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	rc := opts.cfg.Relay
	if cmd.Flags().Changed("port") {
		rc.Port = opts.Port
	}
	if opts.Host != "" {
		rc.Host = opts.Host
	}

	srv := relay.NewServer(rc, relay.Options{
		Logger:   opts.logger,
		Registry: prometheus.NewRegistry(),
	})
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloader, err := config.NewReloader(opts.ConfigPath, func(c *config.Config) {
		if err := logging.SetLevel(opts.level, c.Log.Level); err != nil {
			opts.logger.Warn("config reload: keeping log level", "error", err)
		}
		srv.SetAllowedOrigins(c.Relay.AllowedOrigins)
	}, opts.logger)
	if err != nil {
		opts.logger.Info("config hot reload disabled", "reason", err)
	} else {
		go reloader.Run(ctx)
	}

	return srv.Serve(ctx)
}
