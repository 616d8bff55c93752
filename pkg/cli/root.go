// Package cli implements the ekaya-flux command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

// Execute runs the root command. With no subcommand the gateway is served.
func Execute(ctx context.Context, version string) error {
	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ekaya-flux",
		Short: "Session gateway for InfluxDB",
		Long: "ekaya-flux validates InfluxDB credentials once, issues an opaque session token " +
			"and proxies schema browsing and Flux queries for that session.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath, version)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "YAML config file (environment variables override it)")

	rootCmd.AddCommand(
		newServeCmd(&configPath, version),
		newCheckCmd(&configPath, version),
		newVersionCmd(version),
	)

	return rootCmd
}
