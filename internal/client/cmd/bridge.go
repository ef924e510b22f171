package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"peerbridge/internal/app"
	"peerbridge/internal/bridge"

	"github.com/spf13/cobra"
)

var (
	bridgePort  uint16
	openBrowser bool
)

// httpCmd 浏览对端的 HTTP 服务
var httpCmd = &cobra.Command{
	Use:   "http <kulfi-url>",
	Short: "Serve a peer's HTTP service on a local port",
	Long: `Start an HTTP bridge on 127.0.0.1. Every request is forwarded to the peer
named in the URL, or to the peer named by the request's Host header when the
URL has no peer id.

Example:
  peerbridge http kulfi://<id>/                # Random local port
  peerbridge http kulfi://<id>/docs -p 8080 --open`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge(cmd, bridge.KindHTTP, args[0])
	},
}

// tcpCmd TCP 桥接
var tcpCmd = &cobra.Command{
	Use:   "tcp <kulfi-url>",
	Short: "Forward a local TCP port to a peer",
	Long: `Start a TCP bridge on 127.0.0.1. Each accepted connection opens one stream
to the peer.

Example:
  peerbridge tcp kulfi://<id> -p 5432`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge(cmd, bridge.KindTCP, args[0])
	},
}

// udpCmd UDP 桥接
var udpCmd = &cobra.Command{
	Use:   "udp <kulfi-url>",
	Short: "Forward a local UDP port to a peer",
	Long: `Start a UDP bridge on 127.0.0.1. Each UDP client address gets its own stream
to the peer; datagrams are framed on the stream.

Example:
  peerbridge udp kulfi://<id> -p 5353`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge(cmd, bridge.KindUDP, args[0])
	},
}

// tcpUDPCmd 同端口 TCP+UDP 桥接
var tcpUDPCmd = &cobra.Command{
	Use:   "tcp-udp <kulfi-url>",
	Short: "Forward TCP and UDP on the same local port to a peer",
	Long: `Start a TCP bridge and a UDP bridge on the same 127.0.0.1 port.

Example:
  peerbridge tcp-udp kulfi://<id> -p 53`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge(cmd, bridge.KindTCPUDP, args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{httpCmd, tcpCmd, udpCmd, tcpUDPCmd} {
		c.Flags().Uint16VarP(&bridgePort, "port", "p", 0, "Local port on 127.0.0.1 (0 = random)")
	}
	httpCmd.Flags().BoolVar(&openBrowser, "open", false, "Open the browser once the port is bound")
}

// runBridge 运行单个桥接直到 Ctrl-C
func runBridge(cmd *cobra.Command, kind bridge.Kind, url string) error {
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
	defer a.Close()

	info, err := a.Shell().Launch(kind, bridgePort, url, kind == bridge.KindHTTP && openBrowser)
	if err != nil {
		out.Error("%s", bridge.Reason(err))
		return fmt.Errorf("bridge not started")
	}

	out.Success("%s bridge listening on 127.0.0.1:%d", kind, info.Port)
	out.KeyValue("Peer", displayPeer(info.PeerID))
	out.KeyValue("Identity", a.Endpoint().ID())
	out.Plain("Press Ctrl-C to stop")

	<-ctx.Done()
	out.Info("Shutting down...")
	return nil
}

// displayPeer HTTP 桥接没有固定对端时按 Host 头寻址
func displayPeer(id string) string {
	if id == "" {
		return "(from Host header)"
	}
	return id
}
