// File: cmd/app/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=...".
var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	dev        bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "directory-billing",
		Short:         "Subscription payments for the business directory",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&g.dev, "dev", false, "developer mode (console logs, unmasked fields)")

	root.AddCommand(serveCmd(g))
	root.AddCommand(migrateCmd(g))
	root.AddCommand(reconcileCmd(g))
	root.AddCommand(tokenCmd(g))
	return root
}
