package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"peerbridge/internal/app"

	"github.com/spf13/cobra"
)

// serveCmd 运行配置中的全部桥接和控制 API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run configured bridges and the control API",
	Long: `Start every bridge listed under "bridges" in peerbridge.yaml, the control API
when api.enabled is set, and the expose listener when expose.listen is set.
Runs until interrupted.

Example:
  peerbridge serve
  peerbridge serve -c /etc/peerbridge/peerbridge.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	out := newOutput(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}

	out.Header("peerbridge")
	out.KeyValue("Identity", a.Endpoint().ID())
	out.KeyValue("Carrier", a.Endpoint().Carrier().Name())
	out.KeyValue("Bridges", strconv.Itoa(len(cfg.Bridges)))
	if cfg.API.Enabled {
		out.KeyValue("Control API", cfg.API.Listen)
	}
	if cfg.Expose.Listen != "" {
		out.KeyValue("Expose", cfg.Expose.Listen)
	}

	return a.Run(ctx)
}
