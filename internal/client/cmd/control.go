package cmd

import (
	"context"
	"strconv"
	"time"

	"peerbridge/internal/api"
	"peerbridge/internal/bridge"
	"peerbridge/internal/client/cli"

	"github.com/spf13/cobra"
)

// statusCmd 查询桥接状态
var statusCmd = &cobra.Command{
	Use:   "status <kulfi-url>",
	Short: "Show whether a bridge is running in a serve process",
	Long: `Ask the control API of a running "peerbridge serve" whether the bridge keyed
by the URL is running.

Example:
  peerbridge status kulfi://<id>/docs`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

// stopCmd 停止桥接
var stopCmd = &cobra.Command{
	Use:   "stop <kulfi-url>",
	Short: "Stop a bridge in a serve process",
	Long: `Stop the bridge keyed by the URL through the control API.

Example:
  peerbridge stop kulfi://<id>/docs`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

// listCmd 列出桥接
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bridges of a serve process",
	Long: `List running bridges with their ports and traffic counters.

Example:
  peerbridge list --api 127.0.0.1:7117`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// newAPIClient 地址和令牌优先取命令行参数
func newAPIClient() (*api.Client, error) {
	addr, token := apiAddr, apiToken
	if addr == "" || token == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if addr == "" {
			addr = cfg.API.Listen
		}
		if token == "" {
			token = cfg.API.Token.Value()
		}
	}
	return api.NewClient(addr, token), nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	running, err := client.Status(ctx, args[0])
	if err != nil {
		return err
	}
	out := newOutput(cmd)
	if running {
		out.Success("%s is running", args[0])
	} else {
		out.Warning("%s is not running", args[0])
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	result, err := client.Stop(ctx, args[0])
	if err != nil {
		return err
	}
	newOutput(cmd).Success("%s: %s", args[0], result)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	resp, err := client.List(ctx)
	if err != nil {
		return err
	}
	out := newOutput(cmd)
	if resp.Total == 0 {
		out.Info("no bridges running")
		return nil
	}

	bridgeTable(resp.Bridges).Render(out)
	return nil
}

func bridgeTable(bridges []bridge.BridgeInfo) *cli.Table {
	table := cli.NewTable("URL", "KIND", "PORT", "SENT", "RECEIVED", "CONNS", "ACTIVE", "UPTIME")
	for _, b := range bridges {
		table.AddRow(
			b.Key,
			string(b.Kind),
			strconv.Itoa(int(b.Port)),
			strconv.FormatInt(b.Stats.BytesSent, 10),
			strconv.FormatInt(b.Stats.BytesReceived, 10),
			strconv.FormatInt(b.Stats.ConnectionCount, 10),
			strconv.FormatInt(b.Stats.ActiveSessions, 10),
			time.Since(b.StartedAt).Round(time.Second).String(),
		)
	}
	return table
}
