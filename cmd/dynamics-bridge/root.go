package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "dynamics-bridge",
	Short:         "Dynamics-bridge moves LeadSuccess leads into Dynamics 365.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, usersCmd)
}
