package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pg "directory-billing/internal/infra/db/postgres"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	run := func(up bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			v, err := pg.Migrate(cfg.Database.URL, up)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Uint("version", v).Bool("up", up).Msg("migrations applied")
			return nil
		}
	}
	cmd.AddCommand(&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run(true)})
	cmd.AddCommand(&cobra.Command{Use: "down", Short: "Roll back one migration", RunE: run(false)})
	return cmd
}
