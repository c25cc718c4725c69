package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/danmuck/lnpnet/internal/config"
	"github.com/danmuck/lnpnet/internal/daemon"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func listenCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run the node until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNodeConfig(path)
			if err != nil {
				return err
			}
			local, err := session.LoadLocalNode(cfg.KeyFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, local)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "lnpd.toml", "node config file")
	return cmd
}

func run(ctx context.Context, cfg config.NodeConfig, local *session.LocalNode) error {
	svc, err := daemon.NewService(ctx, cfg, local)
	if err != nil {
		return err
	}
	log.Info().Str("node_id", local.String()).Strs("listen", cfg.Listen).Msg("starting lnpd")
	return svc.Run(ctx)
}
