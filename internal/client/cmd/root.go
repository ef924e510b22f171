// Package cmd 提供 peerbridge CLI 的命令框架
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"peerbridge/internal/client/cli"
	"peerbridge/internal/config/loader"
	"peerbridge/internal/config/schema"
	"peerbridge/internal/core/dispose"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/version"

	"github.com/spf13/cobra"
)

// 全局标志
var (
	configFile string
	logLevel   string
	apiAddr    string
	apiToken   string
	noColor    bool
)

// rootCmd 代表根命令
var rootCmd = &cobra.Command{
	Use:   "peerbridge",
	Short: "peerbridge - expose remote peers as local TCP, UDP and HTTP ports",
	Long: `peerbridge binds local ports on 127.0.0.1 and forwards every connection,
UDP client or HTTP request to a remote peer addressed by a kulfi:// URL.

Quick Start:
  peerbridge http kulfi://<id>/             Browse a peer's HTTP service
  peerbridge tcp kulfi://<id> -p 5432       Forward local port 5432 to a peer
  peerbridge serve                          Run configured bridges and the control API
  peerbridge expose --tcp 127.0.0.1:8080    Accept peer streams for a local service`,
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	// 全局 panic recovery
	defer func() {
		if r := recover(); r != nil {
			corelog.Errorf("FATAL: main goroutine panic recovered: %v", r)
			corelog.Errorf("Stack trace:\n%s", string(debug.Stack()))
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (default: search for peerbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug/info/warn/error")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "Control API address for status/stop/list (default: api.listen)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Control API bearer token (default: api.token)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(httpCmd)
	rootCmd.AddCommand(tcpCmd)
	rootCmd.AddCommand(udpCmd)
	rootCmd.AddCommand(tcpUDPCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exposeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 加载配置，命令行参数覆盖配置文件
func loadConfig() (*schema.Root, error) {
	cfg, err := loader.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// configureLogging 配置日志并把 dispose 的日志接到 corelog
func configureLogging(cfg *schema.Root) error {
	if err := corelog.Configure(corelog.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		File:   cfg.Log.File,
	}); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	dispose.SetLogger(corelog.DisposeBridge)
	return nil
}

// setup 加载配置并配置日志
func setup() (*schema.Root, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newOutput 命令的输出工具，非终端时不着色
func newOutput(cmd *cobra.Command) *cli.Output {
	return cli.NewOutputTo(cmd.OutOrStdout(), noColor || !cli.IsTerminal())
}
