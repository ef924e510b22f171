package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"peerbridge/internal/app"

	"github.com/spf13/cobra"
)

var (
	exposeListen string
	exposeTCP    string
	exposeUDP    string
)

// exposeCmd 对端侧：接收入站流并转发到本地服务
var exposeCmd = &cobra.Command{
	Use:   "expose",
	Short: "Accept peer streams and forward them to local services",
	Long: `Listen for inbound carrier connections and forward tcp/http streams to a
local TCP service and udp streams to a local UDP service. Peers reach this
node by its identity, printed on start.

Example:
  peerbridge expose --listen 0.0.0.0:7443 --tcp 127.0.0.1:8080
  peerbridge expose --udp 127.0.0.1:53`,
	Args: cobra.NoArgs,
	RunE: runExpose,
}

func init() {
	exposeCmd.Flags().StringVar(&exposeListen, "listen", "", "Carrier listen address (default: expose.listen)")
	exposeCmd.Flags().StringVar(&exposeTCP, "tcp", "", "Local TCP target for tcp/http streams")
	exposeCmd.Flags().StringVar(&exposeUDP, "udp", "", "Local UDP target for udp streams")
}

func runExpose(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if exposeListen != "" {
		cfg.Expose.Listen = exposeListen
	}
	if exposeTCP != "" {
		cfg.Expose.TCPTarget = exposeTCP
	}
	if exposeUDP != "" {
		cfg.Expose.UDPTarget = exposeUDP
	}
	if cfg.Expose.Listen == "" {
		return fmt.Errorf("no listen address: set --listen or expose.listen")
	}
	out := newOutput(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	addr, err := a.StartExpose()
	if err != nil {
		return err
	}

	out.Success("accepting %s connections on %s", a.Endpoint().Carrier().Name(), addr)
	out.KeyValue("Identity", a.Endpoint().ID())
	if cfg.Expose.TCPTarget != "" {
		out.KeyValue("TCP target", cfg.Expose.TCPTarget)
	}
	if cfg.Expose.UDPTarget != "" {
		out.KeyValue("UDP target", cfg.Expose.UDPTarget)
	}

	<-ctx.Done()
	out.Info("Shutting down...")
	return nil
}
