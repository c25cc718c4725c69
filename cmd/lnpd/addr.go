package main

import (
	"fmt"
	"io"

	"github.com/danmuck/lnpnet/internal/protocol/addr"
	"github.com/spf13/cobra"
)

func addrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addr <url>",
		Short: "Parse a node URL and print its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := addr.ParseNodeAddr(args[0])
			if err != nil {
				return err
			}
			printAddr(cmd.OutOrStdout(), a)
			return nil
		},
	}
}

func printAddr(w io.Writer, a addr.NodeAddr) {
	fmt.Fprintf(w, "url:       %s\n", a.URL())
	fmt.Fprintf(w, "transport: %s\n", a.Proto())
	switch a := a.(type) {
	case addr.RemoteNodeAddr:
		fmt.Fprintf(w, "node id:   %s\n", addr.NodeIDHex(a.NodeID))
		fmt.Fprintf(w, "socket:    %s\n", a.Remote.Addr)
		if a.Remote.Proto == addr.ProtoZMQ {
			fmt.Fprintf(w, "api:       %s\n", a.Remote.API)
		}
		if m, err := a.Remote.Multiaddr(); err == nil {
			fmt.Fprintf(w, "multiaddr: %s\n", m)
		}
	case addr.ZmqSocketAddr:
		fmt.Fprintf(w, "endpoint:  %s\n", a.Endpoint)
		fmt.Fprintf(w, "api:       %s\n", a.API)
	case addr.PosixSocketAddr:
		fmt.Fprintf(w, "path:      %s\n", a.Path)
	}
}
