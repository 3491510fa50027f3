// Command server runs the livepoll API and live-update service.
//
// Usage:
//
//	server              # same as "server serve"
//	server serve        # run the HTTP and WebSocket server
//	server migrate      # create or upgrade the storage schema and exit
//	server version      # print build information
package main

import (
	"fmt"
	"os"

	"github.com/pscheid92/livepoll/internal/platform/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Live poll service",
	Long: `livepoll stores polls, accepts votes over HTTP and pushes every updated
poll snapshot to the WebSocket clients watching that poll.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
