// toilctl is a command-line client for a running TOIL engine server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/toil-engine/pkg/client"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "toilctl",
	Short: "toilctl – CLI for the TOIL accrual engine",
	Long: `toilctl talks to a running TOIL engine server over its HTTP API.
Point it at the server with --server (default http://localhost:8080).`,
}

func api() *client.Client {
	return client.New(serverURL)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the TOIL engine server")

	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(dedupCmd)
	rootCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(resumeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
