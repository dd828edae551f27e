package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portfolio-advisor",
	Short: "Portfolio recommendation API and worker",
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(recommendCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
