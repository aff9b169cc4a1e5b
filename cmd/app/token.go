package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"directory-billing/internal/infra/api"
)

func tokenCmd(g *globalFlags) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <caller>",
		Short: "Mint a bearer token for an internal caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			tok, err := api.NewAuthManager(cfg.API.JWTSecret, ttl).Mint(args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "service", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
