package cli

import (
	"fmt"
	"net"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/loopviz/loopviz/internal/logging"
	"github.com/loopviz/loopviz/internal/tui/app"
	"github.com/loopviz/loopviz/internal/tui/client"
)

// TUIOptions holds flags for the tui command.
type TUIOptions struct {
	*RootOptions
	URL string
}

// NewTUICommand creates the tui command.
func NewTUICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TUIOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Attach a terminal surface to a running relay",
		Long: `Connect to the relay's surface endpoint and render the live resource
graph. Logs go to --log-file when set and are discarded otherwise, since the
terminal belongs to the interface.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "surface websocket URL (default ws://<relay.host>:<relay.port>/surface)")

	return cmd
}

// surfaceURL picks the --url flag or derives the endpoint from config.
func (o *TUIOptions) surfaceURL() string {
	if o.URL != "" {
		return o.URL
	}
	return "ws://" + net.JoinHostPort(o.cfg.Relay.Host, strconv.Itoa(o.cfg.Relay.Port)) + "/surface"
}

func runTUI(opts *TUIOptions, cmd *cobra.Command) error {
	logger := opts.logger
	if opts.LogFile == "" {
		logger = logging.Discard()
	}

	url := opts.surfaceURL()
	base, err := client.BaseURLFromSurface(url)
	if err != nil {
		return fmt.Errorf("invalid --url: %w", err)
	}

	surface := client.NewSurfaceClient(url, logger)
	defer surface.Close()

	m := app.New(surface, client.NewHTTPClient(base), logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
