package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/lnpnet/internal/daemon"
	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/danmuck/lnpnet/internal/protocol/transport"
	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	var (
		count   int
		size    uint16
		keyFile string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping <url>",
		Short: "Send pings to a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := addr.ParseNodeAddr(args[0])
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("count must be positive")
			}

			local, err := pingIdentity(keyFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			zctx := transport.NewZmqContext(ctx)
			defer zctx.Close()
			node, err := session.NewNode(local, session.DefaultConfig(), session.WithZmqContext(zctx))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "PING %s\n", target)
			return daemon.Ping(ctx, node, target, count, size, func(r daemon.PingResult) {
				fmt.Fprintf(out, "%d bytes: seq=%d time=%s\n", r.Size, r.Seq, r.RTT.Round(time.Microsecond))
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "pings to send")
	cmd.Flags().Uint16Var(&size, "size", 0, "pong padding to request")
	cmd.Flags().StringVar(&keyFile, "key", "", "node key file; a throwaway key is used when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func pingIdentity(path string) (*session.LocalNode, error) {
	if path == "" {
		return session.GenerateLocalNode()
	}
	return session.LoadLocalNode(path)
}
