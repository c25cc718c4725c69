package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/danmuck/lnpnet/internal/derivation"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/spf13/cobra"
)

// defaultNodePath is where node keys are derived from when a seed is given.
const defaultNodePath = "m/9735h/0h/*h"

func keygenCmd() *cobra.Command {
	var (
		out   string
		seed  string
		path  string
		index uint32
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a node key file",
		Long: `Create a node key file. Without --seed a random key is generated;
with --seed the key is derived from the hex seed along --path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("key file already exists: %s", out)
				}
			}

			var (
				node *session.LocalNode
				err  error
			)
			if seed == "" {
				node, err = session.GenerateLocalNode()
			} else {
				node, err = deriveNode(seed, path, index)
			}
			if err != nil {
				return err
			}
			if err := session.SaveLocalNode(out, node); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nnode id %s\n", out, node)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "lnpd.key", "key file to write")
	cmd.Flags().StringVar(&seed, "seed", "", "hex seed to derive the key from")
	cmd.Flags().StringVar(&path, "path", defaultNodePath, "derivation path template")
	cmd.Flags().Uint32Var(&index, "index", 0, "wildcard index for ranged paths")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing key file")
	return cmd
}

func deriveNode(seedHex, path string, index uint32) (*session.LocalNode, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	tmpl, err := derivation.ParseTemplate(path)
	if err != nil {
		return nil, err
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	key, err := tmpl.DeriveKey(master, index)
	if err != nil {
		return nil, err
	}
	return &session.LocalNode{PrivateKey: key}, nil
}
