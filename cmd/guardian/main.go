// Command guardian runs the wearable event relay and its admin commands.
package main

import (
	"fmt"
	"os"

	"github.com/HerbHall/guardian/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Guardian - real-time relay for wearable safety devices",
	Long: `Guardian accepts location pings, emergency alerts and heartbeats from
field devices over HTTP or MQTT, stores them, and pushes them to every
mobile client watching that device over WebSocket.`,
	SilenceUsage: true,
	Version:      version.Short(),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
	},
}

func init() {
	rootCmd.SetVersionTemplate(version.Info() + "\n")
	rootCmd.PersistentFlags().String("config", "", "path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(versionCmd)
}
