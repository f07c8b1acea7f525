// Package commands implements the latticectl operator CLI, one command per
// file, each registered on Execute's root command with a cobra.Command's
// RunE.
package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "latticectl",
	Short: "Operator CLI for a lattice cluster",
}

// Execute runs the latticectl root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pingCmd)
}
