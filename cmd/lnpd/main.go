package main

import (
	"fmt"
	"os"

	"github.com/danmuck/lnpnet/internal/observability"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lnpd",
		Short: "Lightning network protocol node",
		Long: `lnpd runs an LNP node: framed TCP, websocket, ZMQ and unix socket
listeners with Noise encrypted sessions for remote peers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLogger("lnpd")
		},
	}

	rootCmd.AddCommand(
		keygenCmd(),
		configCmd(),
		listenCmd(),
		pingCmd(),
		addrCmd(),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lnpd: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lnpd %s (%s)\n", version, commit)
		},
	}
}
