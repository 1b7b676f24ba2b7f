package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stratum",
	Short: "Tiered contextual memory store",
	Long:  "Stratum stores contextual memories across hot, warm, cold, and frozen tiers with lifecycle management, a relationship graph, and federated search. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statsCmd)
}
