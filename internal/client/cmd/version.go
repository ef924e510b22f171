package cmd

import (
	"fmt"
	"runtime"

	"peerbridge/internal/peer"
	"peerbridge/internal/version"

	"github.com/spf13/cobra"
)

// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show detailed version information including build time and git commit.

Example:
  peerbridge version`,
	Args: cobra.NoArgs,
	Run:  runVersion,
}

// identityCmd 生成新的对端标识
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Generate a new 52-character peer identity",
	Long: `Print a freshly generated peer identity, suitable for the "identity" field
of peerbridge.yaml.

Example:
  peerbridge identity`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), peer.NewIdentity())
	},
}

func runVersion(cmd *cobra.Command, args []string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "peerbridge %s\n", version.GetVersion())
	fmt.Fprintf(w, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "carriers: %v\n", peer.CarrierNames())
}
