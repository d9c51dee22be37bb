package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "memkeep",
	Short: "Per-user memory store with decay for AI agents",
	Long:  "Memkeep stores timestamped, importance-scored memories per user, answers keyword/date/importance queries, and ages records out through a policy-driven decay pass.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(compactCmd)
}
