package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "circled",
	Short: "Relationship-graph engine for a personal network",
	Long:  "Circled tracks who is connected to whom, at what closeness tier, what each tier may see, and when to reconnect. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(nudgesCmd)
	rootCmd.AddCommand(capacityCmd)
}
