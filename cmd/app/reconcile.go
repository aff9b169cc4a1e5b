package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"directory-billing/internal/infra/sched"
)

func reconcileCmd(g *globalFlags) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rewrite business status columns that drifted from the subscription record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			if batch <= 0 {
				batch = cfg.Reconcile.BatchSize
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			fixed, err := sched.NewDriftReconciler(a.subs, batch, 0, logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "corrected %d business(es)\n", fixed)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "rows per scan (default reconcile.batch_size)")
	return cmd
}
