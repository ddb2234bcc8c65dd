package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command for the appctx application
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appctx",
		Short: "appctx - run and inspect a component container",
		Long: `appctx assembles a component container from a configuration file,
refreshes it and serves it until interrupted.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or TOML configuration file")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewComponentsCommand())
	return cmd
}

// PrintVersion returns the version line
func PrintVersion() string {
	return fmt.Sprintf("appctx v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
