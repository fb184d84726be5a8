package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tunedrift/tunedrift/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tunedrift",
	Short: "Search, download and catalogue music from a peer-to-peer network",
	Long: `tunedrift coordinates searches and downloads on a Soulseek network through
an slskd daemon, and turns finished downloads into a tagged, enriched music
library served over HTTP and WebSocket.

Running tunedrift without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tunedrift %s\n", config.Version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
